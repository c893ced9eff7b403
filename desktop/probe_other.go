//go:build !linux && !darwin

package desktop

func newIdleProbe(cfg Config) IdleProbe {
	cfg.Logger.Info("desktop: idle detection unsupported on this platform")
	return NoIdle{}
}

func newContextProbe(cfg Config) ContextProbe {
	cfg.Logger.Info("desktop: window context unsupported on this platform")
	return NoContext{}
}
