package socket

import (
	"context"

	"roulette_server/services"

	socketio "github.com/googollee/go-socket.io"
	log "github.com/sirupsen/logrus"
)

// connState tracks which user and room a socket belongs to.
type connState struct {
	UserName string
	RoomName string
}

// NewSocketServer initializes and returns a new Socket.IO server. Clients
// join their room's channel after matching; a dropped socket of a joined
// user is treated as an unexpected disconnect.
func NewSocketServer(matchmaking *services.MatchmakingService, reconciler *services.ReconciliationService) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(c socketio.Conn) error {
		c.SetContext(connState{})
		log.WithField("socketId", c.ID()).Info("✅ Socket connected")
		return nil
	})

	// Client enters its matched room
	server.OnEvent("/", "join", func(c socketio.Conn, data map[string]string) {
		roomName := data["roomName"]
		userName := data["userName"]
		if roomName == "" || userName == "" {
			log.WithField("socketId", c.ID()).Warn("❌ Invalid join request")
			return
		}
		c.SetContext(connState{UserName: userName, RoomName: roomName})
		c.Join(roomName)
		// Tells a partner who was waiting alone in the room that someone came
		server.BroadcastToRoom("/", roomName, "matched", map[string]string{
			"userName": userName,
			"roomName": roomName,
		})
		reconciler.Notify(roomName)
		log.WithFields(log.Fields{"userName": userName, "roomName": roomName}).Info("👥 User joined room")
	})

	// Client leaves deliberately (hang up / close window button)
	server.OnEvent("/", "leave", func(c socketio.Conn, data map[string]string) {
		state, _ := c.Context().(connState)
		if state.RoomName != "" {
			c.Leave(state.RoomName)
			server.BroadcastToRoom("/", state.RoomName, "partner_left", map[string]string{
				"userName": state.UserName,
			})
			reconciler.Notify(state.RoomName)
		}
		c.SetContext(connState{})
		if state.UserName != "" {
			if _, err := matchmaking.Cancel(context.Background(), state.UserName); err != nil {
				log.WithError(err).WithField("userName", state.UserName).Warn("Cancel on leave failed")
			}
		}
	})

	server.OnError("/", func(c socketio.Conn, err error) {
		log.WithError(err).Warn("Socket error")
	})

	// An unannounced drop while joined to a room is an unexpected disconnect
	server.OnDisconnect("/", func(c socketio.Conn, reason string) {
		state, _ := c.Context().(connState)
		log.WithFields(log.Fields{"socketId": c.ID(), "reason": reason}).Info("❌ Socket disconnected")
		if state.UserName == "" || state.RoomName == "" {
			return
		}
		userName, roomName := state.UserName, state.RoomName
		go func() {
			result, err := matchmaking.HandleDisconnection(context.Background(), userName, roomName, "")
			if err != nil {
				log.WithError(err).WithField("userName", userName).Warn("Disconnect handling failed")
				return
			}
			if result.LeftBehindUser != "" {
				server.BroadcastToRoom("/", roomName, "partner_left", map[string]string{
					"userName": userName,
				})
			}
			reconciler.Notify(roomName)
		}()
	})

	return server
}
