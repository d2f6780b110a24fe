// Package register blank-imports every implemented protocol package so
// their init() functions run and populate the protocol registry. Import
// this package (for side effects only) from the binary's entrypoint
// (cmd/agora does), never from protocol itself — each protocols/<name>
// package imports protocol, so protocol cannot import them back without
// a cycle.
package register

import (
	_ "github.com/agoraflow/agora/protocol/protocols/ach"
	_ "github.com/agoraflow/agora/protocol/protocols/causalloop"
	_ "github.com/agoraflow/agora/protocol/protocols/constraintnegotiation"
	_ "github.com/agoraflow/agora/protocol/protocols/cynefin"
	_ "github.com/agoraflow/agora/protocol/protocols/debate"
	_ "github.com/agoraflow/agora/protocol/protocols/delphi"
	_ "github.com/agoraflow/agora/protocol/protocols/falsification"
	_ "github.com/agoraflow/agora/protocol/protocols/ooda"
	_ "github.com/agoraflow/agora/protocol/protocols/parallelsynthesis"
	_ "github.com/agoraflow/agora/protocol/protocols/premortem"
	_ "github.com/agoraflow/agora/protocol/protocols/redblue"
	_ "github.com/agoraflow/agora/protocol/protocols/sixhats"
	_ "github.com/agoraflow/agora/protocol/protocols/voting"
)
