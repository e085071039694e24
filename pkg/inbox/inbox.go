// Package inbox provides the public API for embedding the agent inbox.
// This is the stable API for external consumers.
package inbox

import (
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/dispatch"
	coreinbox "github.com/RunLittleTurtle/agent-inbox-sub001/internal/inbox"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/runtime"
)

// App runs the inbox. See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// Types callers see in results.
type (
	Target        = domain.Target
	Thread        = domain.Thread
	ThreadData    = domain.ThreadData
	Filter        = domain.Filter
	HumanResponse = domain.HumanResponse
	Query         = coreinbox.Query
	Page          = coreinbox.Page
	Selection     = dispatch.Selection
	Notice        = dispatch.Notice
	NotifierFunc  = dispatch.NotifierFunc
	ResponseType  = domain.ResponseType
)

// New creates a new App with the given options.
// Example:
//
//	app, err := inbox.New(
//	    inbox.WithFileConfig("config.yaml"),
//	    inbox.WithSQLite("./data/inbox.db"),
//	)
var New = runtime.New

// Configuration options
var (
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite        = runtime.WithSQLite
	WithMemoryStorage = runtime.WithMemoryStorage
	WithSecretStore   = runtime.WithSecretStore

	// Advanced options
	WithClientFactory = runtime.WithClientFactory
	WithLogger        = runtime.WithLogger
)

// WithNotifier routes dispatch notices raised under ctx to n.
var WithNotifier = dispatch.WithNotifier
