package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gonum.org/v1/plot"

	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/plotting"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	net  atomic.Pointer[network.Network]
	busy atomic.Bool
}

func (f *fakeSource) Network() *network.Network { return f.net.Load() }
func (f *fakeSource) Busy() bool                { return f.busy.Load() }

func (f *fakeSource) RenderPlot(name string) (*plot.Plot, error) {
	n := f.net.Load()
	if name != plotting.ChartTotalElectricitySupply {
		return nil, fmt.Errorf("%w: %s", plotting.ErrUnknownChart, name)
	}
	if n == nil {
		return nil, plotting.ErrNotSolved
	}
	return plotting.Layout(12).TotalElectricitySupply(n)
}

func solved(t *testing.T) *network.Network {
	t.Helper()
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := network.BuildBaseNetwork(network.BaseParams{
		Snapshots: network.HourlySnapshots(start, start.Add(time.Hour)),
		Load:      []float64{5, 5},
		CFWind:    []float64{1, 1},
		Carriers:  []string{network.CarrierWind},
	})
	require.NoError(t, err)
	wind := n.Generator(network.CarrierWind)
	wind.P = []float64{5, 5}
	wind.PNomOpt = 5
	n.Status, n.Condition, n.Objective = "ok", "optimal", 42
	return n
}

func startServer(t *testing.T, src Source) (*WebServer, *http.Client) {
	t.Helper()
	hs := NewWebServer(src, "127.0.0.1:0", zap.NewNop())
	require.NotNil(t, hs)
	require.NoError(t, hs.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, hs.Stop(ctx))
	})
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 10 * time.Second}
	return hs, client
}

func get(t *testing.T, client *http.Client, url string) (int, []byte) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestDisabledServer(t *testing.T) {
	hs := NewWebServer(&fakeSource{}, "", nil)
	assert.Nil(t, hs)
	assert.NoError(t, hs.Start())
	assert.NoError(t, hs.Stop(context.Background()))
	hs.Publish("ignored")
}

func TestEndpoints(t *testing.T) {
	src := &fakeSource{}
	hs, client := startServer(t, src)
	base := "http://" + hs.Addr()

	status, body := get(t, client, base+"/api/health")
	require.Equal(t, http.StatusOK, status)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.Planner.Solved)

	status, _ = get(t, client, base+"/api/results")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	status, _ = get(t, client, base+"/api/plots/"+plotting.ChartTotalElectricitySupply)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	src.net.Store(solved(t))

	status, body = get(t, client, base+"/api/results")
	require.Equal(t, http.StatusOK, status)
	var results ResultsResponse
	require.NoError(t, json.Unmarshal(body, &results))
	assert.Equal(t, "optimal", results.Condition)
	assert.Equal(t, 42.0, results.Objective)
	assert.Equal(t, 2, results.Snapshots)
	require.Len(t, results.Capacities, 1)
	assert.Equal(t, 5.0, results.Capacities[0].PNomOpt)

	status, body = get(t, client, base+"/api/plots/"+plotting.ChartTotalElectricitySupply)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	status, _ = get(t, client, base+"/api/plots/nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWebSocketBroadcast(t *testing.T) {
	src := &fakeSource{}
	hs, _ := startServer(t, src)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+hs.Addr()+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var initial map[string]any
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "status_update", initial["type"])

	// Wait until the server has registered the client.
	require.Eventually(t, func() bool { return hs.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hs.Publish(map[string]any{"type": "solve_finished", "objective": 1.5})
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == "status_update" {
			continue
		}
		assert.Equal(t, "solve_finished", msg["type"])
		assert.Equal(t, 1.5, msg["objective"])
		break
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "2s"},
		{61 * time.Second, "1m1s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h3m4s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.d))
	}
}
