package sample

import "github.com/opengeo/wpys-go/internal/registry"

// RegisterAll binds every sample process into reg, at least one per
// execution shape. Both cmd/wpys-worker and cmd/wpys-server fill their
// registry with this call only; config.ProcessConfig.Locations is not
// consulted.
func RegisterAll(reg *registry.Registry) error {
	if err := reg.Register(LongRunningProcessDescriptor(), LongRunningProcessHandler{}); err != nil {
		return err
	}
	if err := reg.Register(LongRunningAsyncStreamDescriptor(), LongRunningAsyncStreamHandler{}); err != nil {
		return err
	}
	if err := reg.Register(AddDescriptor(), AddHandler{}); err != nil {
		return err
	}
	if err := reg.Register(DelayEchoDescriptor(), DelayEchoHandler{}); err != nil {
		return err
	}
	if err := reg.Register(FlakyDescriptor(), FlakyHandler{}); err != nil {
		return err
	}
	return nil
}
