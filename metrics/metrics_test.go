package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg)
	Init(reg)

	CommandEnqueued(false)
	CommandEnqueued(true)
	ResultRecorded(ResultTimeout, false)
	Offload(OffloadSuccess, 20*time.Millisecond)
	ConnectionOpened("operator")
	ConnectionOpened("operator")
	ConnectionClosed("operator")

	require.Equal(t, 2.0, testutil.ToFloat64(commandsEnqueued))
	require.Equal(t, 1.0, testutil.ToFloat64(commandsEvicted))
	require.Equal(t, 1.0, testutil.ToFloat64(commandResults.WithLabelValues(ResultTimeout)))
	require.Equal(t, 1.0, testutil.ToFloat64(offloadTotal.WithLabelValues(OffloadSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(connections.WithLabelValues("operator")))
}

func TestInitConcurrentWithRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Init(prometheus.NewRegistry())
		}()
		go func() {
			defer wg.Done()
			CommandPushed()
			ConnectionOpened("device")
			ConnectionClosed("device")
		}()
	}
	wg.Wait()
	require.True(t, ready())
}
