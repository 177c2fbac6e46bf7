package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	onlineasr "github.com/ieee0824/onlineasr-go"
	"github.com/ieee0824/onlineasr-go/audio"
)

// maxFrameBytes bounds one websocket message.
const maxFrameBytes = 1 << 20

// Stream message types.
const (
	msgFinalize = "finalize"
	msgPartial  = "partial"
	msgFinal    = "final"
	msgError    = "error"
)

// controlMessage is a client text frame.
type controlMessage struct {
	Type string `json:"type"`
}

// streamWord is one aligned word of a final reply.
type streamWord struct {
	Word     string  `json:"word"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// streamReply is a server text frame.
type streamReply struct {
	Type       string       `json:"type"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Endpoint   bool         `json:"endpoint,omitempty"`
	Words      []streamWord `json:"words,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// handleStream runs one decoder for the lifetime of a websocket connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	ctx := r.Context()
	s.metrics.ServerSessions.Add(ctx, 1)
	defer s.metrics.ServerSessions.Add(context.WithoutCancel(ctx), -1)

	st := &stream{srv: s, conn: conn, dec: onlineasr.NewDecoder(s.model)}
	err = st.serve(ctx)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		s.log.Debug("stream closed by client")
		return
	}
	if errors.Is(err, context.Canceled) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.log.Warn("stream failed", "error", err)
	conn.Close(websocket.StatusInternalError, "stream failed")
}

type stream struct {
	srv  *Server
	conn *websocket.Conn
	dec  *onlineasr.Decoder
}

func (st *stream) serve(ctx context.Context) error {
	rate := st.srv.model.SampleRate()
	for {
		typ, data, err := st.conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			samples, err := audio.DecodePCM16LE(data)
			if err != nil {
				if err := st.send(ctx, streamReply{Type: msgError, Error: err.Error()}); err != nil {
					return err
				}
				continue
			}
			if err := st.dec.DecodeContext(ctx, rate, samples, false); err != nil {
				return fmt.Errorf("decode chunk: %w", err)
			}
			if st.srv.cfg.Endpointing && st.dec.EndpointDetected() {
				if err := st.finalize(ctx, true); err != nil {
					return err
				}
				continue
			}
			text, conf := st.dec.DecodedString()
			if err := st.send(ctx, streamReply{Type: msgPartial, Text: text, Confidence: conf}); err != nil {
				return err
			}

		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != msgFinalize {
				if err := st.send(ctx, streamReply{Type: msgError, Error: "unknown control message"}); err != nil {
					return err
				}
				continue
			}
			if err := st.finalize(ctx, false); err != nil {
				return err
			}
		}
	}
}

// finalize completes the current utterance and sends the final reply. An
// utterance with no decodable audio yields an empty final reply.
func (st *stream) finalize(ctx context.Context, endpoint bool) error {
	err := st.dec.DecodeContext(ctx, st.srv.model.SampleRate(), nil, true)
	if err != nil && !errors.Is(err, onlineasr.ErrEmptyLattice) {
		return fmt.Errorf("finalize: %w", err)
	}
	reply := streamReply{Type: msgFinal, Endpoint: endpoint}
	if err == nil {
		reply.Text, reply.Confidence = st.dec.DecodedString()
		if st.srv.model.HasAlignLexicon() && reply.Text != "" {
			words, aerr := st.dec.WordAlignment()
			if aerr != nil {
				st.srv.log.Warn("stream word alignment", "error", aerr)
			}
			for _, w := range words {
				reply.Words = append(reply.Words, streamWord{Word: w.Word, Start: w.StartTime, Duration: w.Duration})
			}
		}
	}
	st.srv.log.Debug("stream utterance finalized", "text", reply.Text, "endpoint", endpoint)
	return st.send(ctx, reply)
}

func (st *stream) send(ctx context.Context, v streamReply) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.conn.Write(ctx, websocket.MessageText, data)
}
