package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// Identity headers set by the upstream gateway. The server trusts them;
// authenticating the user happens before a request gets here.
const (
	HeaderUserID       = "X-User-ID"
	HeaderCapabilities = "X-User-Capabilities"
	HeaderViewerID     = "X-Viewer-ID"
)

func principalFrom(userID, caps string) model.Principal {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil || id <= 0 {
		return model.Anonymous
	}
	return model.Principal{UserID: id, Authenticated: true}.WithCapabilities(caps)
}

// principalFromRequest returns the acting user of an HTTP request.
func principalFromRequest(r *http.Request) model.Principal {
	return principalFrom(r.Header.Get(HeaderUserID), r.Header.Get(HeaderCapabilities))
}

// principalFromContext returns the acting user of a gRPC call.
func principalFromContext(ctx context.Context) model.Principal {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return model.Anonymous
	}
	return principalFrom(first(md, "x-user-id"), first(md, "x-user-capabilities"))
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// viewerID picks the presence key of a reader. An explicit viewer id wins,
// then the user id. Anonymous readers without one get a fresh id, which is
// echoed back in the X-Viewer-ID response header for reuse.
func (s *Server) viewerID(w http.ResponseWriter, r *http.Request, p model.Principal) string {
	if v := r.Header.Get(HeaderViewerID); v != "" {
		return v
	}
	if v := r.URL.Query().Get("viewer_id"); v != "" {
		return v
	}
	if p.Authenticated {
		return "user:" + strconv.FormatInt(p.UserID, 10)
	}
	v := s.newViewerID()
	w.Header().Set(HeaderViewerID, v)
	return v
}

func viewerIDFromContext(ctx context.Context, p model.Principal) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := first(md, "x-viewer-id"); v != "" {
			return v
		}
	}
	if p.Authenticated {
		return "user:" + strconv.FormatInt(p.UserID, 10)
	}
	return ""
}
