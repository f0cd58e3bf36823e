package server

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rxlens/rxlens/internal/chat"
	"github.com/rxlens/rxlens/internal/session"
	"github.com/rxlens/rxlens/internal/vision"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Mode string `json:"mode"`
	Text string `json:"text"`
}

// wsFrame is the outgoing WebSocket message format. Type is "token",
// "done" or "error".
type wsFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleWebSocket serves chat turns over a websocket connection. Each
// incoming message runs one turn; fragments stream back as token frames
// followed by a done frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: websocket read: %v", err)
			}
			return
		}
		if req.Text == "" {
			s.sendFrame(conn, wsFrame{Type: "error", Error: "text is required"})
			continue
		}
		s.streamTurn(conn, r, sess, req)
	}
}

func (s *Server) streamTurn(conn *websocket.Conn, r *http.Request, sess *session.Session, req wsRequest) {
	stream, err := s.chat.Continue(r.Context(), sess.Analysis, chat.Mode(req.Mode),
		req.Text, sess.ImageDataURL, sess.History, sess, s.cfg.ChatParams)
	if err != nil {
		s.sendFrame(conn, wsFrame{Type: "error", Error: turnErrorMessage(err)})
		return
	}
	defer stream.Close()

	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("server: websocket chat stream: %v", err)
			s.sendFrame(conn, wsFrame{Type: "error", Error: "model stream failed"})
			return
		}
		s.sendFrame(conn, wsFrame{Type: "token", Content: frag})
	}
	s.sendFrame(conn, wsFrame{Type: "done"})
}

func (s *Server) sendFrame(conn *websocket.Conn, frame wsFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("server: websocket write: %v", err)
	}
}

// turnErrorMessage keeps upstream details out of client-facing frames.
func turnErrorMessage(err error) string {
	switch err.(type) {
	case *vision.ConfigurationError:
		return err.Error()
	case *vision.APIError, *vision.TransportError:
		log.Printf("server: websocket chat: %v", err)
		return "model request failed"
	default:
		log.Printf("server: websocket chat: %v", err)
		return "chat turn failed"
	}
}
