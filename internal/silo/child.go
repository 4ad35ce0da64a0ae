package silo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/carlosrabelo/sharpremote/internal/endpoint"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// parentPollInterval is how often the child checks its parent is still
// alive (spec §4.7: "the child additionally enables raising on-exit events
// for the parent PID; if the parent dies first the child shuts itself
// down"). Go has no native process-exit event, so this polls instead. Kept
// well under the 1s bound spec.md §8 scenario 5 requires for self-shutdown
// after parent death, leaving headroom for the goodbye print and exit.
const parentPollInterval = 100 * time.Millisecond

// ChildOptions configures the child side of an out-of-process host.
type ChildOptions struct {
	EndpointName  string
	OfferCompress bool
	// Configure is called once with the freshly constructed endpoint,
	// before the handshake starts, so the caller can register servant
	// types on its SubjectHost.
	Configure func(*endpoint.Endpoint)
}

// Run implements the child side of the stdout handshake protocol: print
// booting, open a loopback listener, print its port immediately before
// ready, then serve the single inbound peer until ctx is cancelled or the
// parent process disappears.
//
// parentPIDArg is the child's sole command-line argument (spec §4.7): the
// parent's PID, used for liveness polling.
func Run(ctx context.Context, parentPIDArg string, opts ChildOptions) error {
	parentPID, err := strconv.Atoi(parentPIDArg)
	if err != nil {
		return apperrors.New(apperrors.HandshakeFailure, "expected parent pid as sole argument")
	}

	fmt.Println("booting")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return apperrors.Wrap(apperrors.NotConnected, "open loopback listener", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Println(port)
	fmt.Println("ready")

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go monitorParent(childCtx, cancel, parentPID)
	go func() {
		<-childCtx.Done()
		_ = ln.Close()
	}()

	e := endpoint.New(endpoint.Options{
		Name:          opts.EndpointName,
		OfferCompress: opts.OfferCompress,
	})
	if opts.Configure != nil {
		opts.Configure(e)
	}

	err = e.Serve(childCtx, ln)
	fmt.Println("goodbye")
	return err
}

// monitorParent polls for the parent process's continued existence and
// cancels cancel() the moment it is gone.
func monitorParent(ctx context.Context, cancel context.CancelFunc, parentPID int) {
	ticker := time.NewTicker(parentPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !processAlive(parentPID) {
				cancel()
				return
			}
		}
	}
}

// processAlive reports whether pid names a live process, using the
// signal-0 probe idiom (no-op signal delivery fails with ESRCH if the
// process is gone). This is a POSIX idiom; on platforms without signal 0
// support it conservatively reports the process alive rather than
// shutting a healthy child down.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}
