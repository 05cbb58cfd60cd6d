package ledger

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/chain/txvm/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kleo-p/algo-wear"
	"github.com/Kleo-p/algo-wear/account"
	"github.com/Kleo-p/algo-wear/net"
)

// Server exposes a Ledger over HTTP.
type Server struct {
	L   *Ledger
	Log *zap.Logger

	// FundLimit caps a single /fund request. Zero disables /fund.
	FundLimit uint64
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", s.Submit)
	mux.HandleFunc("/round", s.Round)
	mux.HandleFunc("/app", s.App)
	mux.HandleFunc("/listings", s.Listings)
	mux.HandleFunc("/balance", s.Balance)
	mux.HandleFunc("/fund", s.Fund)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Rejected is the body of a 400 response to a refused group.
type Rejected struct {
	Error string `json:"error"`
	Op    string `json:"op,omitempty"`
	Check string `json:"check,omitempty"`
}

// Submit accepts a JSON array of signed transactions forming one group.
func (s *Server) Submit(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		net.Errorf(s.Log, w, http.StatusMethodNotAllowed, "method %s not allowed", req.Method)
		return
	}
	ctx := req.Context()

	bits, err := ioutil.ReadAll(req.Body)
	if err != nil {
		net.Errorf(s.Log, w, http.StatusInternalServerError, "reading request body: %s", err)
		return
	}
	var signed []account.SignedTxn
	err = json.Unmarshal(bits, &signed)
	if err != nil {
		net.Errorf(s.Log, w, http.StatusBadRequest, "parsing request body: %s", err)
		return
	}
	txns := make([]wear.Txn, 0, len(signed))
	for i, st := range signed {
		err = account.Verify(st)
		if err != nil {
			net.Errorf(s.Log, w, http.StatusBadRequest, "verifying txn %d: %s", i, err)
			return
		}
		txns = append(txns, st.Txn)
	}

	res, err := s.L.Submit(ctx, txns)
	if IsRejection(err) {
		body := Rejected{Error: err.Error()}
		if r, ok := wear.RejectionOf(err); ok {
			body.Op = r.Op.String()
			body.Check = r.Check
		}
		net.WriteJSON(s.Log, w, http.StatusBadRequest, body)
		return
	}
	if err != nil {
		net.Errorf(s.Log, w, http.StatusInternalServerError, "submitting group: %s", err)
		return
	}
	net.WriteJSON(s.Log, w, http.StatusOK, res)
}

// Round returns the round named by the "round" parameter, waiting for it
// to close if necessary. Zero or absent means the latest closed round.
func (s *Server) Round(w http.ResponseWriter, req *http.Request) {
	want, err := uintParam(req, "round")
	if err != nil {
		net.Errorf(s.Log, w, http.StatusBadRequest, "parsing round: %s", err)
		return
	}
	if want == 0 {
		want = s.L.Height()
	}

	ctx := req.Context()
	ch, cancel := s.L.RoundWaiter(want)
	defer cancel()
	select {
	case <-ch:
		// ok
	case <-ctx.Done():
		net.Errorf(s.Log, w, http.StatusRequestTimeout, "timed out")
		return
	}

	r, err := s.L.GetRound(ctx, want)
	if err != nil {
		net.Errorf(s.Log, w, http.StatusInternalServerError, "getting round %d: %s", want, err)
		return
	}
	net.WriteJSON(s.Log, w, http.StatusOK, r)
}

// App returns the application named by the "id" parameter.
func (s *Server) App(w http.ResponseWriter, req *http.Request) {
	id, err := uintParam(req, "id")
	if err != nil || id == 0 {
		net.Errorf(s.Log, w, http.StatusBadRequest, "invalid app id %q", req.FormValue("id"))
		return
	}
	info, err := s.L.App(req.Context(), id)
	if errors.Root(err) == ErrNoSuchApp {
		net.Errorf(s.Log, w, http.StatusNotFound, "app %d not found", id)
		return
	}
	if err != nil {
		net.Errorf(s.Log, w, http.StatusInternalServerError, "getting app %d: %s", id, err)
		return
	}
	net.WriteJSON(s.Log, w, http.StatusOK, info)
}

// Listings returns every live indexed listing.
func (s *Server) Listings(w http.ResponseWriter, req *http.Request) {
	listings, err := s.L.Listings(req.Context())
	if err != nil {
		net.Errorf(s.Log, w, http.StatusInternalServerError, "getting listings: %s", err)
		return
	}
	if listings == nil {
		listings = []IndexedListing{}
	}
	net.WriteJSON(s.Log, w, http.StatusOK, listings)
}

// Balance returns the balance of the account named by the "addr" parameter.
func (s *Server) Balance(w http.ResponseWriter, req *http.Request) {
	addr, err := wear.ParseAddress(req.FormValue("addr"))
	if err != nil {
		net.Errorf(s.Log, w, http.StatusBadRequest, "%s", err)
		return
	}
	bal, err := s.L.Balance(req.Context(), addr)
	if err != nil {
		net.Errorf(s.Log, w, http.StatusInternalServerError, "getting balance: %s", err)
		return
	}
	net.WriteJSON(s.Log, w, http.StatusOK, map[string]uint64{"balance": bal})
}

// Fund credits "amount" to the account named by "addr", up to FundLimit.
func (s *Server) Fund(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		net.Errorf(s.Log, w, http.StatusMethodNotAllowed, "method %s not allowed", req.Method)
		return
	}
	if s.FundLimit == 0 {
		net.Errorf(s.Log, w, http.StatusForbidden, "funding disabled")
		return
	}
	addr, err := wear.ParseAddress(req.FormValue("addr"))
	if err != nil {
		net.Errorf(s.Log, w, http.StatusBadRequest, "%s", err)
		return
	}
	amount, err := uintParam(req, "amount")
	if err != nil || amount == 0 || amount > s.FundLimit {
		net.Errorf(s.Log, w, http.StatusBadRequest, "amount must be between 1 and %d", s.FundLimit)
		return
	}
	bal, err := s.L.Fund(req.Context(), addr, amount)
	if errors.Root(err) == ErrOverflow {
		net.Errorf(s.Log, w, http.StatusBadRequest, "%s", err)
		return
	}
	if err != nil {
		net.Errorf(s.Log, w, http.StatusInternalServerError, "funding %s: %s", addr, err)
		return
	}
	net.WriteJSON(s.Log, w, http.StatusOK, map[string]uint64{"balance": bal})
}

func uintParam(req *http.Request, name string) (uint64, error) {
	str := req.FormValue(name)
	if str == "" {
		return 0, nil
	}
	return strconv.ParseUint(str, 10, 64)
}
