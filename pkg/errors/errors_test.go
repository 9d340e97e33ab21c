package errors

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewError(t *testing.T) {
	Convey("Given a mix of errors and messages", t, func() {
		err := NewError("semantic graph", ErrUnavailable, nil, ErrNotFound)

		Convey("Then every error is reachable through errors.Is", func() {
			So(err, ShouldNotBeNil)
			So(Is(err, ErrUnavailable), ShouldBeTrue)
			So(Is(err, ErrNotFound), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "semantic graph: ")
		})
	})

	Convey("Given only nil errors", t, func() {
		Convey("Then NewError returns nil", func() {
			So(NewError("nothing", nil), ShouldBeNil)
		})
	})
}

func TestRetry(t *testing.T) {
	Convey("Given a function that fails twice", t, func() {
		calls := 0
		fn := func() error {
			calls++
			if calls < 3 {
				return ErrUnavailable
			}
			return nil
		}

		cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

		Convey("Then Retry succeeds on the third attempt", func() {
			So(Retry(context.Background(), cfg, fn), ShouldBeNil)
			So(calls, ShouldEqual, 3)
		})
	})

	Convey("Given a function that always fails", t, func() {
		calls := 0
		cfg := &RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

		err := Retry(context.Background(), cfg, func() error {
			calls++
			return ErrUnavailable
		})

		Convey("Then the last error is wrapped", func() {
			So(Is(err, ErrUnavailable), ShouldBeTrue)
			So(calls, ShouldEqual, 2)
		})
	})
}
