package api

import (
	"net/http"

	"github.com/heyvard/helse-spanner/audit"
	"github.com/heyvard/helse-spanner/spleis"
)

// WhoAmI handles GET /: it reports the logged-in identity, which doubles as
// the "already logged in" probe for the frontend.
func (a *API) WhoAmI(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, WhoAmIResponse{
		Subject:     sess.Identity.Subject,
		Name:        sess.Identity.Name,
		ValidBefore: sess.ValidBefore,
	})
}

// Person handles GET /api/person/. Exactly one of the fnr and aktorId
// headers selects the person; the access is audited before any data is
// fetched, and a failed audit write aborts the lookup.
func (a *API) Person(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	fnr := r.Header.Get("fnr")
	aktorID := r.Header.Get("aktorId")

	var (
		id     string
		idType spleis.IDType
		kind   audit.Kind
	)
	switch {
	case fnr != "" && aktorID != "":
		writeError(w, r, http.StatusBadRequest, "set exactly one of the fnr and aktorId headers")
		return
	case fnr != "":
		id, idType, kind = fnr, spleis.IDTypeFnr, audit.KindNationalID
	case aktorID != "":
		id, idType, kind = aktorID, spleis.IDTypeAktorID, audit.KindInternalID
	default:
		writeError(w, r, http.StatusBadRequest, "set exactly one of the fnr and aktorId headers")
		return
	}

	err := a.audit.Record(r.Context(), audit.Access{
		Actor:         sess.Identity.Subject,
		ActorName:     sess.Identity.Name,
		TargetID:      id,
		TargetKind:    kind,
		CorrelationID: correlationID(r.Context()),
	})
	if err != nil {
		a.logger.ErrorContext(r.Context(), "audit write failed, aborting lookup", "err", err)
		writeError(w, r, http.StatusInternalServerError, "audit log unavailable")
		return
	}

	body, err := a.persons.Person(r.Context(), id, idType, sess.Token.AccessToken)
	if err != nil {
		mapError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
