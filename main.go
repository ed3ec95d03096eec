package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gitzhang10/pohchain/config"
	"github.com/gitzhang10/pohchain/node"
)

var conf *config.Config
var err error

func init() {
	conf, err = config.LoadConfig("poh", "config")
	if err != nil {
		panic(err)
	}
}

func main() {
	n, err := node.NewNode(conf)
	if err != nil {
		panic(err)
	}
	if err = n.StartP2PListen(); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// peers that are not up yet are picked up by the redial loop
	if err = n.EstablishP2PConns(); err != nil {
		fmt.Println("some peers are unreachable:", err)
	}
	n.Start(ctx)
	fmt.Printf("%s starts the chain at %s as %s\n", conf.Name, n.Addr(), n.ID())

	<-ctx.Done()
	if err = n.Close(); err != nil {
		panic(err)
	}
}
