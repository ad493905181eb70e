// Package realtimechat implements a voice chat against OpenAI's Realtime API over WebRTC.
//
// The module has two halves that never share state:
//
//   - an issuer (package issuer, cmd/ephemeral-issuer) that trades the long-lived API key for a
//     short-lived ephemeral credential and hands only that credential to clients;
//   - an audio client (package webrtc, cmd/voicechat) that fetches the credential, negotiates a
//     peer connection with the provider and streams audio both ways.
//
// This root package holds what both halves need: configuration, credentials, the session
// request model, typed errors and the leveled logger.
//
// Basic client usage:
//
//	cfg, err := realtimechat.LoadConfig("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	ctrl, err := webrtc.NewController(cfg, webrtc.OggMedia(cfg.InputPath, cfg.OutputPath))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ctrl.Close()
//	if err := ctrl.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Start returns once the remote answer has been applied; Stop tears the session down.
package realtimechat
