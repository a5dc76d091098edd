package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	p := BackoffPolicy{
		BaseWait:   time.Second,
		MaxWait:    10 * time.Second,
		MaxRetries: 3,
	}

	tests := []struct {
		name    string
		attempt int
		kind    ErrorKind
		delay   time.Duration
		retry   bool
	}{
		{"first transient", 0, KindTransient, time.Second, true},
		{"second transient doubles", 1, KindTransient, 2 * time.Second, true},
		{"third transient doubles again", 2, KindTransient, 4 * time.Second, true},
		{"transient ceiling", 3, KindTransient, 0, false},
		{"rate limited retries immediately", 0, KindRateLimited, 0, true},
		{"rate limited respects ceiling", 3, KindRateLimited, 0, false},
		{"fatal never retries", 0, KindFatal, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retry := p.Delay(tt.attempt, tt.kind)
			assert.Equal(t, tt.retry, retry)
			assert.Equal(t, tt.delay, delay)
		})
	}
}

func TestBackoffCapsAtMaxWait(t *testing.T) {
	p := BackoffPolicy{
		BaseWait:   time.Second,
		MaxWait:    5 * time.Second,
		MaxRetries: 10,
	}

	delay, retry := p.Delay(9, KindTransient)
	assert.True(t, retry)
	assert.Equal(t, 5*time.Second, delay)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindRateLimited, Classify(RateLimited(assert.AnError, time.Second)).Kind)
	assert.Equal(t, KindFatal, Classify(Fatal(assert.AnError)).Kind)
	assert.Equal(t, KindTransient, Classify(assert.AnError).Kind)
}
