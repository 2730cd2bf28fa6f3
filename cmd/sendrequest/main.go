package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// sendrequest pushes one JSON request file to the calibration topic and
// prints the first reply, standing in for the documented websocat invocation.
func main() {
	wsURL := flag.String("url", "ws://localhost:8888/ws/calibration", "Websocket URL of the calibration topic")
	file := flag.String("file", "test/json/oneport/oneport.json", "JSON request file to send")
	wait := flag.Duration("wait", 10*time.Second, "How long to wait for the reply")
	flag.Parse()

	request, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal("read:", err)
	}

	c, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	if err := c.WriteMessage(websocket.TextMessage, request); err != nil {
		log.Fatal("write:", err)
	}

	c.SetReadDeadline(time.Now().Add(*wait))
	_, reply, err := c.ReadMessage()
	if err != nil {
		log.Fatal("read reply:", err)
	}
	fmt.Println(string(reply))
}
