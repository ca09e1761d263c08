package mirror

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	s3_lib "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestS3(t *testing.T) {
	t.Parallel()

	const bucketName = "test-bucket"

	backend := s3mem.New()
	err := backend.CreateBucket(bucketName)
	require.NoError(t, err)

	fakeS3 := gofakes3.New(backend)
	serv := httptest.NewServer(fakeS3.Server())
	defer serv.Close()

	s3Config, err := aws_config.LoadDefaultConfig(
		context.Background(),
		aws_config.WithRegion("us-east-1"),
		aws_config.WithCredentialsProvider(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		})),
		aws_config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	require.NoError(t, err)

	s3 := &S3{
		log:     zap.NewNop(),
		timeout: 10 * time.Second,
		client: s3_lib.NewFromConfig(s3Config, func(o *s3_lib.Options) {
			o.BaseEndpoint = aws.String(serv.URL)
			o.UsePathStyle = true
		}),
		Config: Config{
			S3Bucket:     bucketName,
			PathTemplate: stdTestTemplate,
		},
	}
	assert.Equal(t, "s3://test-bucket/"+stdTestTemplate, s3.String())

	exerciseMirror(t, s3)
}
