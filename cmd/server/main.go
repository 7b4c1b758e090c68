package main

import (
	"log"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/app"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Serve(cfg)
}
