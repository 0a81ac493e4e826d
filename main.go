package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/router"
	"github.com/prebid/adstxt-validator/server"
	"github.com/spf13/viper"
)

// Rev holds binary revision string
// Set manually at build time using:
//
//	go build -ldflags "-X main.Rev=`git rev-parse --short HEAD`"
var Rev string

// Version is the release version, set at build time like Rev.
var Version string

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	err = serve(Version, Rev, cfg)
	if err != nil {
		glog.Exitf("adstxt-validator failed: %v", err)
	}
}

const configFileName = "adstxt"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(version, revision string, cfg *config.Configuration) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	corsRouter := router.SupportCORS(r, cfg.CORS.AllowedOrigins)
	return server.Listen(cfg, router.NoCache{Handler: corsRouter}, router.Admin(version, revision, r), r.MetricsEngine)
}
