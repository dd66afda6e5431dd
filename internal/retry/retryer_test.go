package retry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergequeue/internal/goorderr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRetryer(t *testing.T) *Retryer {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer()
	t.Cleanup(r.Stop)

	return r
}

func TestRetryerDefaultTimeout(t *testing.T) {
	r := newTestRetryer(t)
	r.defTimeout = time.Second

	start := time.Now()
	err := r.Run(context.Background(), func(context.Context) error {
		return goorderr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	assert.ErrorIsf(t, err, context.DeadlineExceeded, "err: %+v", err)
	assert.Less(t, time.Since(start), r.defTimeout+time.Second)
}

func TestRetryerSuccessAfterRetries(t *testing.T) {
	r := newTestRetryer(t)
	r.backoffInitialInterval = 10 * time.Millisecond

	var tries int
	err := r.Run(context.Background(), func(context.Context) error {
		tries++
		if tries < 3 {
			return goorderr.NewRetryableAnytimeError(errors.New("err"))
		}

		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, tries)
}

func TestRetryerNotRetryableError(t *testing.T) {
	r := newTestRetryer(t)
	expectedErr := errors.New("permanent")

	var tries int
	err := r.Run(context.Background(), func(context.Context) error {
		tries++
		return expectedErr
	}, nil)

	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, tries)
}

func TestRetryAfterBeyondDeadline(t *testing.T) {
	r := newTestRetryer(t)

	ctx, cancelFunc := context.WithTimeout(context.Background(), time.Second)
	defer cancelFunc()

	var tries int
	err := r.Run(ctx, func(context.Context) error {
		tries++
		return goorderr.NewRetryableError(errors.New("rate limited"), time.Now().Add(time.Hour))
	}, nil)

	require.Error(t, err)
	assert.True(t, goorderr.IsRetryable(err))
	assert.Equal(t, 1, tries)
}

func TestRetryAfterInThePast(t *testing.T) {
	r := newTestRetryer(t)
	r.backoffInitialInterval = 100 * time.Millisecond

	ctx, cancelFunc := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFunc()

	var retryTimes []time.Time

	err := r.Run(ctx, func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		return goorderr.NewRetryableError(errors.New("err"), time.Now().Add(-time.Second))
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.GreaterOrEqual(t, len(retryTimes), 2)

	for i := 1; i < len(retryTimes); i++ {
		d := retryTimes[i].Sub(retryTimes[i-1])
		require.GreaterOrEqualf(t, d, minInterval(r),
			"time between retry %d and %d is %s, expected >=%s",
			i-1, i, d, minInterval(r),
		)
	}
}

func TestBackoffInterval(t *testing.T) {
	r := newTestRetryer(t)
	r.backoffInitialInterval = 500 * time.Millisecond

	ctx, cancelFunc := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelFunc()

	var retryTimes []time.Time

	err := r.Run(ctx, func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		return goorderr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.GreaterOrEqual(t, len(retryTimes), 2)
	for i := 1; i < len(retryTimes); i++ {
		d := retryTimes[i].Sub(retryTimes[i-1])
		require.GreaterOrEqualf(t, d, minInterval(r),
			"time between retry %d and %d is %s, expected >=%s",
			i-1, i, d, minInterval(r),
		)
	}
}

func TestRetryerStop(t *testing.T) {
	r := newTestRetryer(t)
	r.backoffInitialInterval = time.Hour

	var tries int
	go func() {
		time.Sleep(100 * time.Millisecond)
		r.Stop()
	}()

	err := r.Run(context.Background(), func(context.Context) error {
		tries++
		return goorderr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, tries)
}

func minInterval(retryer *Retryer) time.Duration {
	return time.Duration(math.Floor(float64(retryer.backoffInitialInterval) * (1 - retryer.backoffRandomizationFactor)))
}
