package server

import (
	"encoding/base64"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/adxcore/sfe/internal/adxtypes"
	"github.com/adxcore/sfe/internal/reactor"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// perBuyerConfigWire and the other wire*/Request types below are this
// handler's JSON request/response contract, kept separate from
// adxtypes so a change to the wire shape never leaks into the reactor's
// domain types.
type perBuyerConfigWire struct {
	BuyerSignals   string `json:"buyerSignals"`
	BuyerDebugID   string `json:"buyerDebugId"`
	BuyerTimeoutMS int    `json:"buyerTimeoutMs"`
}

type selectAdWireRequest struct {
	Seller                      string                        `json:"seller"`
	SellerSignals               string                        `json:"sellerSignals"`
	AuctionSignals               string                       `json:"auctionSignals"`
	BuyerList                   []string                      `json:"buyerList"`
	PerBuyerConfig              map[string]perBuyerConfigWire `json:"perBuyerConfig"`
	SellerDebugID               string                        `json:"sellerDebugId"`
	BuyerTimeoutMS              int                           `json:"buyerTimeoutMs"`
	ClientType                  string                        `json:"clientType"`
	ProtectedAudienceCiphertext string                        `json:"protectedAudienceCiphertext"`
}

type selectAdWireResponse struct {
	AuctionResultCiphertext string      `json:"auctionResultCiphertext,omitempty"`
	RawResult               interface{} `json:"rawResult,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SelectAdHandler adapts the HTTP transport to a Reactor per request.
// NewReactor is called once per inbound request since a Reactor is
// single-use (spec.md §9's OnCancel/single-completion redesign).
type SelectAdHandler struct {
	NewReactor func() *reactor.Reactor
}

func (h *SelectAdHandler) ServeSelectAd(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", requestID)

	var wire selectAdWireRequest
	if err := jsonAPI.NewDecoder(r.Body).Decode(&wire); err != nil {
		glog.V(1).Infof("request %s: malformed body: %v", requestID, err)
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ciphertext, err := base64.StdEncoding.DecodeString(wire.ProtectedAudienceCiphertext)
	if err != nil {
		writeError(w, http.StatusBadRequest, "protectedAudienceCiphertext is not valid base64")
		return
	}

	req := adxtypes.SelectAdRequest{
		AuctionConfig: adxtypes.AuctionConfig{
			Seller:         wire.Seller,
			SellerSignals:  wire.SellerSignals,
			AuctionSignals: wire.AuctionSignals,
			BuyerList:      wire.BuyerList,
			SellerDebugID:  wire.SellerDebugID,
			BuyerTimeoutMS: wire.BuyerTimeoutMS,
			PerBuyerConfig: perBuyerConfigFromWire(wire.PerBuyerConfig),
		},
		ClientType:                  clientTypeFromWire(wire.ClientType, r.Header.Get("X-Ad-Client-Type")),
		ProtectedAudienceCiphertext: ciphertext,
	}

	rx := h.NewReactor()
	resp, err := rx.Execute(r.Context(), req)
	if err != nil {
		writeStatusError(w, err)
		return
	}

	out := selectAdWireResponse{}
	if resp.AuctionResultCiphertext != nil {
		out.AuctionResultCiphertext = base64.StdEncoding.EncodeToString(resp.AuctionResultCiphertext)
	}
	if resp.RawResult != nil {
		out.RawResult = resp.RawResult
	}
	writeJSON(w, http.StatusOK, out)
}

func perBuyerConfigFromWire(in map[string]perBuyerConfigWire) map[string]adxtypes.PerBuyerConfig {
	out := make(map[string]adxtypes.PerBuyerConfig, len(in))
	for buyer, pb := range in {
		out[buyer] = adxtypes.PerBuyerConfig{
			BuyerSignals:   pb.BuyerSignals,
			BuyerDebugID:   pb.BuyerDebugID,
			BuyerTimeoutMS: pb.BuyerTimeoutMS,
		}
	}
	return out
}

func clientTypeFromWire(body, header string) adxtypes.ClientType {
	v := body
	if v == "" {
		v = header
	}
	switch v {
	case "BROWSER":
		return adxtypes.ClientBrowser
	case "APP":
		return adxtypes.ClientApp
	default:
		return adxtypes.ClientUnknown
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := jsonAPI.NewEncoder(w).Encode(body); err != nil {
		glog.Errorf("failed writing response body: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, wireError{Code: code, Message: message})
}

// writeStatusError maps the reactor's gRPC-style status error onto the
// nearest HTTP status, per spec.md §4.3's AD_SERVER_VISIBLE channel.
func writeStatusError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeError(w, httpStatusFromGRPC(st.Code()), st.Message())
}

func httpStatusFromGRPC(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
