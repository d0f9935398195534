// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command listen watches a single Firestore document and prints every change
// event pushed by the server. Useful for eyeballing the listen stream against
// a real project.
//
// Usage:
//
//	listen <document-path>
//
// Credentials are resolved from GOOGLE_APPLICATION_CREDENTIALS, and the
// project from FIREBASE_CONFIG or GOOGLE_CLOUD_PROJECT.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"google.golang.org/api/iterator"

	firebase "github.com/firebase/firebase-admin-go"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <document-path>\n", os.Args[0])
		os.Exit(2)
	}
	docPath := os.Args[1]

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		log.Fatalf("error initializing app: %v", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Fatalf("error initializing Firestore client: %v", err)
	}

	doc, err := client.Doc(docPath)
	if err != nil {
		log.Fatalf("invalid document path %q: %v", docPath, err)
	}

	stream, err := doc.Listen(ctx)
	if err != nil {
		log.Fatalf("error opening listen stream: %v", err)
	}
	defer stream.Stop()

	log.Printf("listening on %s", doc.Path)
	for {
		resp, err := stream.Next()
		if err == iterator.Done {
			log.Print("stream closed by server")
			return
		}
		if err != nil {
			log.Fatalf("stream error: %v", err)
		}

		switch {
		case resp.TargetChange != nil:
			log.Printf("target change: %s", resp.TargetChange.TargetChangeType)
		case resp.DocumentChange != nil:
			doc := resp.DocumentChange.Document
			log.Printf("document changed: %s (updated %s)", doc.Name, doc.UpdateTime)
		case resp.DocumentDelete != nil:
			log.Printf("document deleted: %s", resp.DocumentDelete.Document)
		case resp.DocumentRemove != nil:
			log.Printf("document removed: %s", resp.DocumentRemove.Document)
		case resp.Filter != nil:
			log.Printf("existence filter: %d documents", resp.Filter.Count)
		}
	}
}
