package connector

import (
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/nicolagi/memfs/kernel"
	log "github.com/sirupsen/logrus"
)

// S3Connector is a read-only Connector over a single S3 object, read via
// byte-range GetObject requests; every write range fails with ReadOnly.
// Grounded on storage/s3.go/internal/storage/s3.go's s3Store, adapted from
// whole-object get/put keyed by content hash to ranged reads against one
// fixed key (a memory dump uploaded once, then read back in windows).
type S3Connector struct {
	bucket string
	key    string
	client *s3.S3
}

func NewS3Connector(region, bucket, key string) (*S3Connector, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("connector: new s3 session: %w", err)
	}
	return &S3Connector{bucket: bucket, key: key, client: s3.New(sess)}, nil
}

func (c *S3Connector) Size() (kernel.Size, *kernel.Error) {
	out, err := c.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key),
	})
	if err != nil {
		log.WithField("cause", err.Error()).Error("connector: head object failed")
		return 0, kernel.NewError(kernel.OriginIo, kernel.KindUnableToReadFile)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return kernel.Size(*out.ContentLength), nil
}

func (c *S3Connector) ReadAt(ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	for _, r := range ops.In {
		if len(r.Buf) == 0 {
			continue
		}
		rangeHeader := fmt.Sprintf("bytes=%d-%d", r.Addr, r.Addr+uint64(len(r.Buf))-1)
		out, err := c.client.GetObject(&s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key),
			Range:  aws.String(rangeHeader),
		})
		if err != nil {
			kind := kernel.KindUnableToReadFile
			if rfErr, ok := err.(awserr.RequestFailure); ok {
				switch rfErr.StatusCode() {
				case http.StatusNotFound:
					kind = kernel.KindNotFound
				case http.StatusRequestedRangeNotSatisfiable:
					kind = kernel.KindOutOfBounds
				}
			}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: r, Err: kernel.NewError(kernel.OriginRead, kind)}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
			continue
		}
		n, readErr := io.ReadFull(out.Body, r.Buf)
		_ = out.Body.Close()
		if n > 0 && ops.Out != nil {
			if !ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
		if n < len(r.Buf) {
			_ = readErr
			tail := kernel.RWRange{Addr: r.Addr + uint64(n), Buf: r.Buf[n:]}
			if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RWRange]{Range: tail, Err: kernel.NewError(kernel.OriginRead, kernel.KindOutOfBounds)}) {
				return kernel.NewError(kernel.OriginRead, kernel.KindUnknown)
			}
		}
	}
	return nil
}

// WriteAt is not supported: S3 objects have no in-place byte-range write
// API, so a writable memory dump connector would need to buffer and
// re-upload the whole object, which this package deliberately does not do.
func (c *S3Connector) WriteAt(ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	err := kernel.NewError(kernel.OriginWrite, kernel.KindReadOnly)
	for _, r := range ops.In {
		if ops.OutFail != nil && !ops.OutFail(kernel.FailRange[kernel.RORange]{Range: r, Err: err}) {
			return kernel.NewError(kernel.OriginWrite, kernel.KindUnknown)
		}
	}
	return nil
}
