package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IngestMessage]               = (*IngestCommand)(nil)
	_ gocmd.Commander[SendMessage]                 = (*SendCommand)(nil)
	_ gocmd.Commander[AddAllowlistEntryMessage]    = (*AddAllowlistEntryCommand)(nil)
	_ gocmd.Commander[RemoveAllowlistEntryMessage] = (*RemoveAllowlistEntryCommand)(nil)
	_ gocmd.Commander[ClearAllowlistMessage]       = (*ClearAllowlistCommand)(nil)
	_ gocmd.Commander[ConfigureRateLimitMessage]   = (*ConfigureRateLimitCommand)(nil)
	_ gocmd.Commander[RunMaintenanceMessage]       = (*RunMaintenanceCommand)(nil)
)
