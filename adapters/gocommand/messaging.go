package gocommand

import (
	"errors"
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	messaging "github.com/goliatone/go-messaging"
	messagingcommand "github.com/goliatone/go-messaging/command"
	"github.com/goliatone/go-messaging/core"
	messagingquery "github.com/goliatone/go-messaging/query"
)

// Subscriptions holds every dispatcher subscription created for a facade.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterFacade registers and subscribes every messaging command and query
// of facade. Subscriptions made before a failure are released.
func RegisterFacade(adapter *RegistryAdapter, facade *messaging.Facade, runnerOpts ...runner.Option) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return nil, fmt.Errorf("gocommand: messaging facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	subs := Subscriptions{}
	var errs []error
	track := func(sub commanddispatcher.Subscription, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		subs = append(subs, sub)
	}

	track(registerCommand[messagingcommand.IngestMessage](adapter, commands.Ingest, runnerOpts...))
	track(registerCommand[messagingcommand.SendMessage](adapter, commands.Send, runnerOpts...))
	track(registerCommand[messagingcommand.AddAllowlistEntryMessage](adapter, commands.AddAllowlistEntry, runnerOpts...))
	track(registerCommand[messagingcommand.RemoveAllowlistEntryMessage](adapter, commands.RemoveAllowlist, runnerOpts...))
	track(registerCommand[messagingcommand.ClearAllowlistMessage](adapter, commands.ClearAllowlist, runnerOpts...))
	track(registerCommand[messagingcommand.ConfigureRateLimitMessage](adapter, commands.ConfigureRateLimit, runnerOpts...))
	track(registerCommand[messagingcommand.RunMaintenanceMessage](adapter, commands.RunMaintenance, runnerOpts...))

	track(registerQuery[messagingquery.SearchMessagesMessage, []core.Message](adapter, queries.SearchMessages, runnerOpts...))
	track(registerQuery[messagingquery.GetMessageMessage, core.Message](adapter, queries.GetMessage, runnerOpts...))
	track(registerQuery[messagingquery.GetConversationMessage, core.Conversation](adapter, queries.GetConversation, runnerOpts...))
	track(registerQuery[messagingquery.ListAllowlistMessage, []core.AllowlistEntry](adapter, queries.ListAllowlist, runnerOpts...))
	track(registerQuery[messagingquery.ListProvidersMessage, []core.ProviderEntry](adapter, queries.ListProviders, runnerOpts...))
	track(registerQuery[messagingquery.ProviderHealthMessage, map[core.Channel]map[string]error](adapter, queries.ProviderHealth, runnerOpts...))

	if len(errs) > 0 {
		subs.Unsubscribe()
		return nil, errors.Join(errs...)
	}
	return subs, nil
}
