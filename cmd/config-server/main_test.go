package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/radio-emulator/internal/configsvc"
	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const smokeProfile = `
transceivers:
  - id: uhf
    tuning_mhz: {min: 400, max: 500}
    sampling_msps: {min: 1, max: 20}
    bandwidth_mhz: {min: 0.1, max: 10}
    gain_db: {min: 0, max: 30}
radios:
  - id: rx0
    transceiver_id: uhf
    locks:
      - {param: ch0/tuning_freq_MHz, value: 433}
`

func TestConfigServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	profile := filepath.Join(t.TempDir(), "radios.yaml")
	if err := os.WriteFile(profile, []byte(smokeProfile), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	reg := prometheus.NewRegistry()
	cfg := Config{
		ListenAddress: lis.Addr().String(),
		ProfilePath:   profile,
		LogLevel:      "warn",
		LogFormat:     "text",
		Registerer:    reg,
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(cfg.ListenAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	client := configsvc.NewClient(conn)
	radios, err := client.ListRadios(ctx)
	if err != nil {
		t.Fatalf("ListRadios: %v", err)
	}
	if len(radios.Radios) != 1 || radios.Radios[0].Locked != 1 {
		t.Fatalf("ListRadios = %+v, want rx0 with one lock", radios.Radios)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{"emulator_radios", "config_lock_attempts_total", "configsvc_requests_total"} {
		if !seen[name] {
			t.Fatalf("metric %s not registered", name)
		}
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{"-grpc-addr", "127.0.0.1:6000", "-profile", "p.json", "-max-iterations", "50"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:6000" || cfg.ProfilePath != "p.json" || cfg.MaxIterations != 50 {
		t.Fatalf("parseFlags = %+v", cfg)
	}
	if cfg.MetricsAddress != ":9090" {
		t.Fatalf("metrics default = %q", cfg.MetricsAddress)
	}

	if _, err := parseFlags([]string{"-unknown"}); err == nil {
		t.Fatalf("parseFlags accepted an unknown flag")
	}
}
