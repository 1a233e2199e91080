// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector bridges a Minecraft proxy and a Discord guild.
//
// Chat crosses in both directions with mentions rewritten: Discord
// references such as <@123> render as colored names in game, and @Name
// typed in game becomes a Discord user mention. Logins to the proxy are
// gated behind a one-time code the player redeems with /auth on Discord.
//
// # Core Types
//
// [Connector] holds the roster of members with the bridged role, the
// [Directory] of role, channel and user names, and the login gate. Its
// Handle* methods implement the slash commands, the in-game /dsay command,
// the login gate and the join and leave notifications.
//
// [Handler] serves the Connector over HTTP with echo. The proxy plugin and
// the Discord adapter are both clients of this API.
//
// [ProxyClient] lists the proxy's servers and delivers chat components to
// them. [WebhookSender] posts to Discord through an incoming webhook.
//
// [Runtime] assembles all of the above from a [Config], choosing the
// memory or Redis backend for codes and the allow-list.
//
// # Sub-packages
//
//   - mcfmt models Minecraft text components and their legacy rendering.
//   - discordfmt parses Discord reference tokens and builds markdown.
package connector
