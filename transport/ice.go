// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/config"
)

// ICEConfig holds ICE configuration for local PeerConnections.
type ICEConfig struct {
	// Servers is the list of ICE servers (STUN + TURN) to use during
	// candidate gathering. Order matters: pion tries them in sequence.
	Servers []webrtc.ICEServer

	// IncludeLoopback gathers loopback candidates, for viewers on the
	// same machine and for tests.
	IncludeLoopback bool
}

// ICEConfigFromSettings converts the webrtc section of the config
// file. With no servers configured only host candidates are gathered,
// which is enough on a show LAN.
func ICEConfigFromSettings(settings config.WebRTCConfig) ICEConfig {
	iceConfig := ICEConfig{IncludeLoopback: settings.IncludeLoopback}
	for _, server := range settings.ICEServers {
		if len(server.URLs) == 0 {
			continue
		}
		iceConfig.Servers = append(iceConfig.Servers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return iceConfig
}
