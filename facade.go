package messaging

import (
	"fmt"

	messagingcommand "github.com/goliatone/go-messaging/command"
	"github.com/goliatone/go-messaging/core"
	messagingquery "github.com/goliatone/go-messaging/query"
)

type CommandQueryService interface {
	messagingcommand.MutatingService
	messagingcommand.MaintenanceService
	messagingquery.MessageReader
	messagingquery.ConversationReader
	messagingquery.AllowlistReader
	messagingquery.ProviderReader
}

type Commands struct {
	Ingest             *messagingcommand.IngestCommand
	Send               *messagingcommand.SendCommand
	AddAllowlistEntry  *messagingcommand.AddAllowlistEntryCommand
	RemoveAllowlist    *messagingcommand.RemoveAllowlistEntryCommand
	ClearAllowlist     *messagingcommand.ClearAllowlistCommand
	ConfigureRateLimit *messagingcommand.ConfigureRateLimitCommand
	RunMaintenance     *messagingcommand.RunMaintenanceCommand
}

type Queries struct {
	SearchMessages  *messagingquery.SearchMessagesQuery
	GetMessage      *messagingquery.GetMessageQuery
	GetConversation *messagingquery.GetConversationQuery
	ListAllowlist   *messagingquery.ListAllowlistQuery
	ListProviders   *messagingquery.ListProvidersQuery
	ProviderHealth  *messagingquery.ProviderHealthQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("messaging: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Ingest:             messagingcommand.NewIngestCommand(service),
		Send:               messagingcommand.NewSendCommand(service),
		AddAllowlistEntry:  messagingcommand.NewAddAllowlistEntryCommand(service),
		RemoveAllowlist:    messagingcommand.NewRemoveAllowlistEntryCommand(service),
		ClearAllowlist:     messagingcommand.NewClearAllowlistCommand(service),
		ConfigureRateLimit: messagingcommand.NewConfigureRateLimitCommand(service),
		RunMaintenance:     messagingcommand.NewRunMaintenanceCommand(service),
	}
	facade.queries = Queries{
		SearchMessages:  messagingquery.NewSearchMessagesQuery(service),
		GetMessage:      messagingquery.NewGetMessageQuery(service),
		GetConversation: messagingquery.NewGetConversationQuery(service),
		ListAllowlist:   messagingquery.NewListAllowlistQuery(service),
		ListProviders:   messagingquery.NewListProvidersQuery(service),
		ProviderHealth:  messagingquery.NewProviderHealthQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*core.Service)(nil)
