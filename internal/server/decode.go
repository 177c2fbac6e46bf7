package server

import (
	"encoding/json"
	"errors"
	"net/http"

	onlineasr "github.com/ieee0824/onlineasr-go"
	"github.com/ieee0824/onlineasr-go/audio"
)

// decodeRequest is the body of POST /decode.
type decodeRequest struct {
	Audio      []int16 `json:"audio"`
	DoRecord   bool    `json:"do_record"`
	DoASR      bool    `json:"do_asr"`
	DoFinalize bool    `json:"do_finalize"`
	// Session continues an earlier session. Empty starts a new one.
	Session string `json:"session"`
}

// decodeReply is the body of a successful POST /decode. HStr and Confidence
// are set once an utterance is finalized; Partial while it is decoding.
type decodeReply struct {
	HStr       string  `json:"hstr"`
	Confidence float64 `json:"confidence"`
	AudioFn    string  `json:"audiofn"`
	Session    string  `json:"session"`
	Partial    string  `json:"partial,omitempty"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req decodeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: "invalid request: " + err.Error()})
		return
	}
	if req.DoRecord && s.cfg.RecordDir == "" {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: "recording is disabled"})
		return
	}

	sess, ok := s.lookup(ctx, req.Session)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorReply{Error: "unknown session " + req.Session})
		return
	}
	s.decodeSession(w, r, sess, req)
}

// decodeSession serves req on a session returned by lookup.
func (s *Server) decodeSession(w http.ResponseWriter, r *http.Request, sess *session, req decodeRequest) {
	ctx := r.Context()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		writeJSON(w, http.StatusNotFound, errorReply{Error: "session expired " + sess.id})
		return
	}

	reply := decodeReply{Session: sess.id}

	if req.DoRecord {
		if sess.rec == nil {
			if err := s.openRecording(sess); err != nil {
				s.log.Error("open recording", "session", sess.id, "error", err)
				writeJSON(w, http.StatusInternalServerError, errorReply{Error: "recording failed"})
				return
			}
		}
		if err := sess.rec.WriteInt16(req.Audio); err != nil {
			s.log.Error("write recording", "session", sess.id, "path", sess.recPath, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorReply{Error: "recording failed"})
			return
		}
		reply.AudioFn = sess.recPath
		if req.DoFinalize {
			if err := sess.closeRecording(); err != nil {
				s.log.Error("close recording", "session", sess.id, "path", sess.recPath, "error", err)
			}
		}
	}

	if req.DoASR {
		samples := audio.PCM16ToFloat32(make([]float32, 0, len(req.Audio)), req.Audio)
		err := sess.dec.DecodeContext(ctx, s.model.SampleRate(), samples, req.DoFinalize)
		switch {
		case errors.Is(err, onlineasr.ErrEmptyLattice):
			s.log.Warn("nothing decoded", "session", sess.id, "error", err)
		case err != nil:
			s.log.Error("decode", "session", sess.id, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorReply{Error: "decode failed"})
			return
		}
		text, conf := sess.dec.DecodedString()
		if req.DoFinalize {
			reply.HStr, reply.Confidence = text, conf
			s.log.Info("utterance decoded", "session", sess.id, "hstr", text, "confidence", conf)
		} else {
			reply.Partial = text
		}
	}

	writeJSON(w, http.StatusOK, reply)
}
