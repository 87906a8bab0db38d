// Package main prints the clear-sky solar capacity factors of one day.
package main

import (
	"fmt"
	"time"

	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/sun"
)

func main() {
	start := time.Date(2015, 6, 21, 0, 0, 0, 0, time.UTC)
	snapshots := network.HourlySnapshots(start, start.Add(23*time.Hour))

	// Oslo
	cf, err := sun.CapacityFactors(59.91, 10.75, snapshots)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	for i, t := range snapshots {
		fmt.Printf("%s  %.3f\n", t.Format("15:04"), cf[i])
	}
}
