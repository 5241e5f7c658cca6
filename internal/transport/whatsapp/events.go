package whatsapp

import (
	"fmt"

	"github.com/zulandar/rentbell/internal/transport"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
)

// translate maps a whatsmeow event to a normalized transport event. The
// second return is false for events the session core does not care about.
func translate(evt any) (transport.Event, bool) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		return transport.Authenticated(), true
	case *events.Connected:
		// Restored sessions never see PairSuccess; Connected is their
		// authentication signal. Duplicates after pairing are ignored upstream.
		return transport.Authenticated(), true
	case *events.OfflineSyncCompleted:
		return transport.Ready(), true
	case *events.HistorySync:
		if v.Data == nil {
			return transport.Event{}, false
		}
		return transport.SyncProgress(int(v.Data.GetProgress())), true
	case *events.LoggedOut:
		return transport.AuthFailed(fmt.Sprintf("logged out (%s)", v.Reason)), true
	case *events.PairError:
		return transport.AuthFailed(fmt.Sprintf("pairing failed: %v", v.Error)), true
	case *events.ConnectFailure:
		reason := fmt.Sprintf("connect failure: %s", v.Reason)
		if v.Message != "" {
			reason += ": " + v.Message
		}
		return transport.AuthFailed(reason), true
	case *events.ClientOutdated:
		return transport.AuthFailed("client outdated"), true
	case *events.TemporaryBan:
		return transport.AuthFailed(v.String()), true
	case *events.StreamReplaced:
		return transport.Disconnected("stream replaced by another client"), true
	case *events.Disconnected:
		return transport.Disconnected("connection lost"), true
	}
	return transport.Event{}, false
}

// translateQR maps one pairing channel item. Success is reported separately
// through PairSuccess, so it yields no event here.
func translateQR(item whatsmeow.QRChannelItem) (transport.Event, bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		if item.Code == "" {
			return transport.Event{}, false
		}
		return transport.PairingAvailable(item.Code), true
	case whatsmeow.QRChannelSuccess.Event:
		return transport.Event{}, false
	case whatsmeow.QRChannelTimeout.Event:
		return transport.AuthFailed("pairing timed out"), true
	case whatsmeow.QRChannelEventError:
		return transport.AuthFailed(fmt.Sprintf("pairing error: %v", item.Error)), true
	}
	return transport.AuthFailed("pairing aborted: " + item.Event), true
}

// dialFailure maps an error from Client.Connect. Those are network errors;
// server-side rejections arrive later as ConnectFailure events.
func dialFailure(err error) transport.Event {
	return transport.ConnectFailed(fmt.Sprintf("connect: %v", err))
}
