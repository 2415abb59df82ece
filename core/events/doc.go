// Package events defines the typed dialog stream event contract.
//
// A dialog stream carries four named events. Their kinds equal the event
// names used on the wire:
//
//   - TurnStarted (turn_start): a participant starts a turn; carries the
//     turn index, provider and role label.
//   - TokenReceived (token): append-only text piece of the current turn, in
//     stream order. Concatenated tokens give the raw text of the turn.
//   - TurnEnded (turn_end): the turn is over; carries the authoritative final
//     content, which may differ from the concatenated tokens.
//   - DialogEnded (dialog_end): terminal event of a stream instance; carries
//     the total number of turns.
//
// Within one stream instance the events of a turn always arrive as one
// TurnStarted, zero or more TokenReceived and one TurnEnded. DialogEnded may
// follow any event.
package events
