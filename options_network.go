package guides

import (
	"context"

	"github.com/wosguides/guides/config"
	"github.com/wosguides/guides/network"
)

// WithNetworkMonitor supplies the platform connectivity monitor.
// Without it the service uses its own notifier, fed by a prober when NETWORK_PROBE_URL is set.
func WithNetworkMonitor(monitor network.Monitor) Option {
	return func(_ context.Context, s *Service) {
		s.monitor = monitor
	}
}

// NetworkNotifier returns the built-in notifier, or nil when a platform monitor was supplied.
// Platform bridges publish connectivity changes through it.
func (s *Service) NetworkNotifier() *network.Notifier {
	return s.notifier
}

func (s *Service) initNetwork(ctx context.Context) {
	if s.monitor != nil {
		return
	}

	s.notifier = network.NewNotifier(network.Status{Connected: true, InternetReachable: true})
	s.monitor = s.notifier

	netCfg := configAs[config.ConfigurationNetwork](s)
	if netCfg.GetNetworkProbeURL() == "" {
		return
	}

	var proberOpts []network.ProberOption
	if netCfg.GetNetworkProbeInterval() > 0 {
		proberOpts = append(proberOpts, network.WithProbeInterval(netCfg.GetNetworkProbeInterval()))
	}
	if s.httpClient != nil {
		proberOpts = append(proberOpts, network.WithProbeClient(s.httpClient))
	}
	prober := network.NewProber(s.notifier, netCfg.GetNetworkProbeURL(), proberOpts...)

	probeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.proberCancel = cancel
	go prober.Run(probeCtx)
}
