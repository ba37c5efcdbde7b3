// Package main: wallet service.
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

	"github.com/miniwallet/miniwallet/lib/chain/ethereum"
	"github.com/miniwallet/miniwallet/lib/config"
	"github.com/miniwallet/miniwallet/lib/history"
	"github.com/miniwallet/miniwallet/lib/msg"
	"github.com/miniwallet/miniwallet/lib/msg/amqp"
	"github.com/miniwallet/miniwallet/lib/store"
	"github.com/miniwallet/miniwallet/lib/store/db"
	"github.com/miniwallet/miniwallet/lib/store/memory"
	"github.com/miniwallet/miniwallet/wallet"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log.Printf("Configuration:%+v", conf)

	// connect to the durable store for the address book
	var dbConn store.DB

	if conf.DBConn != "" {
		if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
			panic(err)
		}

		log.Printf("Connecting to database:%+v\n", conf.DBConn)
	} else {
		conf.DBType = db.MEMORY
		dbConn, _ = db.New(db.MEMORY, "")

		log.Print("No database configured, address book is in-memory only")
	}

	// connect to the blockchain node
	c, err := ethereum.Init(conf.Node)
	if err != nil {
		panic(err)
	}

	log.Print("Blockchain client loaded")

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			http.ListenAndServe(":9100", h)
		}()
	}

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}
	default:
		log.Printf("Unknown message broker type: %s, transfer events will not be published\n", conf.MbType)
	}

	// create wallet service; the session credential lives in process memory for the life of the service
	w := wallet.New(conf.DBType, dbConn, mb, c, history.New(conf.ExplorerURL, conf.ExplorerKey),
		memory.New(), time.Duration(conf.Refresh)*time.Second)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		w.Stop()
		close(finish)
	}()

	// init RESTful API, wait for its return and log response
	log.Printf("Wallet: %s\n", w.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}
