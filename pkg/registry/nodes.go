package registry

import (
	"github.com/chatflow-io/chatflow/pkg/nodes/conditional"
	"github.com/chatflow-io/chatflow/pkg/nodes/delay"
	"github.com/chatflow-io/chatflow/pkg/nodes/message"
	"github.com/chatflow-io/chatflow/pkg/nodes/waitresponse"
	"github.com/chatflow-io/chatflow/pkg/protocol"
)

// RegisterDefaultNodes registers all built-in node factories.
func (r *Registry) RegisterDefaultNodes(deps protocol.Dependencies) {
	r.RegisterNode(message.NewFactory(deps))
	r.RegisterNode(delay.NewFactory(deps))
	r.RegisterNode(conditional.NewFactory(deps))
	r.RegisterNode(waitresponse.NewFactory(deps))
}
