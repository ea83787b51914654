package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runMaintenance probes idle connections via a context bounded by
// ConnectionTimeout and retires any that fail the probe, refilling
// afterward.
func TestRunMaintenance_RetiresFailedProbeAndRefills(t *testing.T) {
	d := &fakeDialer{}
	tg := testTarget()
	tg.MinSize = 1
	tg.MaxSize = 1
	p, err := New("t1", tg, d)
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, d.sessions, 1)
	d.sessions[0].setFailPing(true)

	p.runMaintenance()

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.ConnectionsClosed)
	assert.EqualValues(t, 1, stats.UnhealthyDetected)

	assert.Eventually(t, func() bool {
		return p.Stats().CurrentSize == 1
	}, time.Second, 5*time.Millisecond, "expected background refill back to MinSize")
}
