// Package telemetry implements opt-in usage telemetry: a PostHog
// event per command invocation, gated behind an explicit opt-in setting and
// an environment variable kill switch, with a fast-timeout transport so a
// telemetry hiccup never blocks CLI exit.
package telemetry

import (
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// PostHogAPIKey is set at build time for production.
	PostHogAPIKey = "phc_development_key"
	// PostHogEndpoint is set at build time for production.
	PostHogEndpoint = "https://eu.i.posthog.com"
)

// OptOutEnvVar disables telemetry unconditionally when set to any value.
const OptOutEnvVar = "WHOGITIT_TELEMETRY_OPTOUT"

// Client records command invocations. NoOpClient is used whenever telemetry
// is disabled, so call sites never need a nil check.
type Client interface {
	TrackCommand(cmd *cobra.Command, outcome string)
	Close()
}

// NoOpClient discards every event.
type NoOpClient struct{}

func (n *NoOpClient) TrackCommand(_ *cobra.Command, _ string) {}
func (n *NoOpClient) Close()                                  {}

type silentLogger struct{}

func (silentLogger) Logf(_ string, _ ...interface{})   {}
func (silentLogger) Debugf(_ string, _ ...interface{}) {}
func (silentLogger) Warnf(_ string, _ ...interface{})  {}
func (silentLogger) Errorf(_ string, _ ...interface{}) {}

// PostHogClient is the live telemetry client.
type PostHogClient struct {
	client     posthog.Client
	machineID  string
	cliVersion string
	mu         sync.RWMutex
}

// NewClient builds a telemetry client. enabled must be an explicit opt-in
// (nil or false defaults to disabled); optedOutEnv lets callers check the
// opt-out env var without importing os directly into call sites that
// already resolve it.
//
//nolint:ireturn // factory returns NoOpClient or PostHogClient based on settings
func NewClient(version string, enabled *bool, optedOutEnv string) Client {
	if optedOutEnv != "" {
		return &NoOpClient{}
	}
	if enabled == nil || !*enabled {
		return &NoOpClient{}
	}

	id, err := machineid.ProtectedID("whogitit")
	if err != nil {
		return &NoOpClient{}
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 100 * time.Millisecond,
		}).DialContext,
		TLSHandshakeTimeout:   100 * time.Millisecond,
		ResponseHeaderTimeout: 100 * time.Millisecond,
	}

	client, err := posthog.NewWithConfig(PostHogAPIKey, posthog.Config{
		Endpoint:           PostHogEndpoint,
		ShutdownTimeout:    100 * time.Millisecond,
		BatchUploadTimeout: 200 * time.Millisecond,
		Transport:          transport,
		Logger:             silentLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("cli_version", version).
			Set("os", runtime.GOOS).
			Set("arch", runtime.GOARCH),
	})
	if err != nil {
		return &NoOpClient{}
	}

	return &PostHogClient{
		client:     client,
		machineID:  id,
		cliVersion: version,
	}
}

// TrackCommand records one command invocation with a coarse outcome string
// (e.g. "ok", "error") and the set of flags used by name, never by value.
func (p *PostHogClient) TrackCommand(cmd *cobra.Command, outcome string) {
	if cmd == nil || cmd.Hidden {
		return
	}

	p.mu.RLock()
	id := p.machineID
	c := p.client
	p.mu.RUnlock()

	if c == nil {
		return
	}

	var flags []string
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		flags = append(flags, flag.Name)
	})

	props := posthog.NewProperties().
		Set("command", cmd.CommandPath()).
		Set("outcome", outcome)

	if len(flags) > 0 {
		props.Set("flags", strings.Join(flags, ","))
	}

	//nolint:errcheck // best-effort telemetry, failures should not affect the CLI
	_ = c.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      "cli_command_executed",
		Properties: props,
	})
}

// Close flushes pending events.
func (p *PostHogClient) Close() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c != nil {
		_ = c.Close()
	}
}
