package main

import (
	"log"
	"net/http"

	"example.com/shop/api"
	"example.com/shop/store"
)

func main() {
	s := store.NewMemory()
	mux := http.NewServeMux()
	api.Register(mux, s)
	log.Fatal(http.ListenAndServe(":8080", mux))
}
