package client_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/credentials"
)

func ExampleNew() {
	c, err := client.New(client.Config{Region: "cn-hangzhou"},
		client.WithCredentialsProvider(credentials.Static("access-key-id", "access-key-secret", "")),
	)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(c.Endpoint())
	// Output: https://oss-cn-hangzhou.aliyuncs.com
}

func ExampleClient_PutObject() {
	c, err := client.New(client.Config{Region: "cn-hangzhou"},
		client.WithCredentialsProvider(credentials.Env()),
	)
	if err != nil {
		log.Fatal(err)
	}

	res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
		Bucket:      "examplebucket",
		Key:         "hello.txt",
		Body:        strings.NewReader("Hello from oss!"),
		ContentType: "text/plain",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("uploaded", res.ETag, "crc64", res.CRC64)
}

func ExampleClient_DownloadFile() {
	c, err := client.New(client.Config{Region: "cn-hangzhou"})
	if err != nil {
		log.Fatal(err)
	}

	res, err := c.DownloadFile(context.Background(), "examplebucket", "backups/db.tar.gz", "db.tar.gz",
		func(o *client.DownloadOptions) { o.Parallel = 8 },
	)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("downloaded", res.Size, "bytes, verified:", res.Verified)
}

func ExampleClient_PresignObject() {
	c, err := client.New(client.Config{Region: "cn-hangzhou"})
	if err != nil {
		log.Fatal(err)
	}

	res, err := c.PresignObject(context.Background(), http.MethodGet, "examplebucket", "hello.txt", time.Hour)
	if err != nil {
		log.Fatal(err)
	}

	// Anyone holding the URL can fetch the object until it expires
	resp, err := http.Get(res.URL) //nolint:noctx // example
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	fmt.Println(resp.Status)
}

func ExampleClient_NewListObjectsV2Paginator() {
	c, err := client.New(client.Config{Region: "cn-hangzhou"})
	if err != nil {
		log.Fatal(err)
	}

	p := c.NewListObjectsV2Paginator(&client.ListObjectsV2Request{Bucket: "examplebucket", Prefix: "logs/"})
	for page, err := range p.Pages(context.Background()) {
		if err != nil {
			log.Fatal(err)
		}
		for _, obj := range page.Contents {
			fmt.Println(obj.Key, obj.Size)
		}
	}
}
