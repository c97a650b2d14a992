package cmd

import (
	"log/slog"
	"net/http"

	"github.com/pulseops/automation/pkg/actions/apicall"
	"github.com/pulseops/automation/pkg/actions/conditioncheck"
	"github.com/pulseops/automation/pkg/actions/record"
	"github.com/pulseops/automation/pkg/actions/sendmessage"
	"github.com/pulseops/automation/pkg/actions/syncsystem"
	"github.com/pulseops/automation/pkg/protocol"
	"github.com/pulseops/automation/pkg/registry"
)

// NewRegistry wires every native action factory. The wait action needs no
// factory; the engine defers it without executing a handler.
func NewRegistry(
	logger *slog.Logger,
	sender protocol.Sender,
	records protocol.RecordStore,
	syncEndpoints map[string]string,
	httpClient *http.Client,
) *registry.Registry {
	reg := registry.NewRegistry(logger)

	for _, factory := range sendmessage.NewFactories(sender) {
		reg.Register(factory)
	}

	reg.Register(conditioncheck.NewFactory())
	reg.Register(record.NewCreateFactory(records))
	reg.Register(record.NewUpdateFactory(records))
	reg.Register(syncsystem.NewFactory(syncEndpoints, httpClient))
	reg.Register(apicall.NewFactory(httpClient))

	return reg
}
