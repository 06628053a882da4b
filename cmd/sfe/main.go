package main

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/adxcore/sfe/internal/auctionresult"
	"github.com/adxcore/sfe/internal/codec"
	"github.com/adxcore/sfe/internal/config"
	"github.com/adxcore/sfe/internal/debugreport"
	"github.com/adxcore/sfe/internal/fanout"
	"github.com/adxcore/sfe/internal/httpfetcher"
	"github.com/adxcore/sfe/internal/keystore"
	"github.com/adxcore/sfe/internal/metrics"
	"github.com/adxcore/sfe/internal/ohttp"
	"github.com/adxcore/sfe/internal/reactor"
	"github.com/adxcore/sfe/internal/server"
)

// Rev holds the binary revision string, set at build time with
// -ldflags "-X main.Rev=`git rev-parse --short HEAD`".
var Rev string

func init() {
	flag.Parse() // read glog settings from the command line
}

func main() {
	v := viper.New()
	config.SetupViper(v, "sfe")
	cfg, err := config.New(v)
	if err != nil {
		glog.Fatalf("configuration could not be loaded or did not pass validation: %v", err)
	}

	if err := serve(Rev, cfg); err != nil {
		glog.Fatalf("sfe failed: %v", err)
	}
}

// newKeyStore seeds the OHTTP key store. Production deployments source
// private keys from a secret manager; this wiring point is where that
// client would be plugged in.
func newKeyStore() keystore.Store {
	return keystore.NewInMemory()
}

func serve(revision string, cfg *config.Configuration) error {
	glog.Infof("starting sfe revision=%q", revision)

	sink := metrics.NewPrometheusSink()
	crypto := ohttp.New(newKeyStore())
	fetcher := httpfetcher.New()

	h := &server.SelectAdHandler{
		NewReactor: func() *reactor.Reactor {
			rx := reactor.New(
				crypto,
				&codec.Decoder{},
				&fanout.Fanout{
					Client:              nil, // wired to a concrete BuyerBidClient per deployment
					Metrics:             sink,
					DefaultBuyerTimeout: cfg.GetBidsTimeout(),
				},
				nil, // wired to a concrete ScoringStage per deployment
				&auctionresult.Builder{Crypto: crypto},
				&debugreport.Reporter{Fetcher: fetcher, Timeout: cfg.ScoringSignalsTimeout()},
				sink,
				reactor.Config{
					SellerOriginDomain: cfg.SellerOriginDomain,
					EnableEncryption:   cfg.EnableEncryption,
					BuyerTimeout:       cfg.GetBidsTimeout(),
					SignalsTimeout:     cfg.ScoringSignalsTimeout(),
					ScoreAdsTimeout:    cfg.ScoreAdsTimeout(),
				},
			)
			if cfg.EnableSellerFrontendBenchmarking {
				rx.Benchmark = reactor.GlogBenchmarkLogger{}
			}
			return rx
		},
	}

	router := server.New(h)
	handler := server.NoCache{Handler: server.SupportCORS(router)}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	glog.Infof("listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}
