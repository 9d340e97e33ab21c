package cmd

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"
)

func TestServeStdio(t *testing.T) {
	Convey("Given a stdio transport whose input never ends", t, func() {
		srv := server.NewMCPServer("recall-test", "0.0.0")
		in, writer := io.Pipe()
		defer writer.Close()

		Convey("When a sibling in the serve group fails", func() {
			group, ctx := errgroup.WithContext(context.Background())
			failure := errors.New("metrics listener failed")

			group.Go(func() error {
				return failure
			})

			group.Go(func() error {
				return serveStdio(ctx, srv, in, io.Discard)
			})

			done := make(chan error, 1)

			go func() {
				done <- group.Wait()
			}()

			var err error
			stopped := false

			select {
			case err = <-done:
				stopped = true
			case <-time.After(3 * time.Second):
			}

			Convey("Then the stdio transport should stop and the failure should surface", func() {
				So(stopped, ShouldBeTrue)
				So(errors.Is(err, failure), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)

			go func() {
				done <- serveStdio(ctx, srv, in, io.Discard)
			}()

			cancel()

			var err error
			stopped := false

			select {
			case err = <-done:
				stopped = true
			case <-time.After(3 * time.Second):
			}

			Convey("Then it should return cleanly", func() {
				So(stopped, ShouldBeTrue)
				So(err, ShouldBeNil)
			})
		})
	})
}
