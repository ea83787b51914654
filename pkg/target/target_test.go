package target

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_FillsOnlyZeroFields(t *testing.T) {
	tg := Target{Name: "t1", URI: "ws://host/rpc", MinSize: 5}
	tg.ApplyDefaults()

	assert.Equal(t, 5, tg.MinSize) // untouched
	assert.Equal(t, 10, tg.MaxSize)
	assert.Equal(t, 5*time.Second, tg.ConnectionTimeout)
	assert.Equal(t, 10*time.Second, tg.AcquisitionTimeout)
	assert.Equal(t, 300*time.Second, tg.MaxIdleTime)
	assert.Equal(t, 3600*time.Second, tg.MaxLifetime)
	assert.Equal(t, 1000, tg.MaxUsageCount)
	assert.Equal(t, 30*time.Second, tg.HealthCheckInterval)
	assert.Equal(t, 3, tg.RetryAttempts)
	assert.Equal(t, time.Second, tg.RetryDelay)
}

func TestValidate_RejectsMissingURI(t *testing.T) {
	tg := Target{Name: "t1"}
	tg.ApplyDefaults()
	err := tg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "uri is required")
}

func TestValidate_RejectsMaxSizeBelowMinSize(t *testing.T) {
	tg := Target{Name: "t1", URI: "ws://host/rpc", MinSize: 5, MaxSize: 2}
	tg.ApplyDefaults()
	err := tg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_size")
}

func TestValidate_AcceptsFullyDefaultedTarget(t *testing.T) {
	tg := Target{Name: "t1", URI: "ws://host/rpc"}
	tg.ApplyDefaults()
	assert.NoError(t, tg.Validate())
}

func TestValidate_RejectsNegativeRetryDelay(t *testing.T) {
	tg := Target{Name: "t1", URI: "ws://host/rpc"}
	tg.ApplyDefaults()
	tg.RetryDelay = -time.Second
	err := tg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry_delay")
}
