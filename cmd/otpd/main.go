// Package main: email one-time-passcode service.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miniwallet/miniwallet/lib/config"
	"github.com/miniwallet/miniwallet/otp"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9101")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	// mail credentials have no defaults: they must always come from the config file or OS ENV
	if conf.MailUser == "" || conf.MailPass == "" || conf.MailFrom == "" {
		log.Fatal("Mail credentials not configured, set mailuser/mailpass/mailfrom or MW_MAILUSER/MW_MAILPASS/MW_MAILFROM")
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9101", h)
		}()
	}

	sender := otp.NewMailSender(conf.MailHost, conf.MailPort, conf.MailUser, conf.MailPass, conf.MailFrom)
	srv := otp.NewServer(otp.New(sender, time.Duration(conf.OTPTTL)*time.Second))

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		srv.Stop()
		close(finish)
	}()

	// init RESTful API, wait for its return and log response
	log.Printf("OTP: %s\n", srv.Init(conf.RestfulEndpoint, conf.OTPPort))

	<-finish
}
