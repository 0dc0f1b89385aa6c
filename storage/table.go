package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

const (
	// Table string properties hold at most 64 KiB of UTF-16, so values are
	// base64 encoded and spread over several properties.
	tableChunkSize = 32000
	tableMaxChunks = 15
)

var errValueTooLarge = errors.New("value exceeds table entity size")

// TableStore keeps each collection in its own partition of an Azure table.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore connects to tableName using an Azure storage connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	svc, err := newTableService(connStr)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(tableName)}, nil
}

func newTableService(connStr string) (*aztables.ServiceClient, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return aztables.NewServiceClientFromConnectionString(connStr, &opts)
}

// ProvisionTable creates the table if it does not exist yet.
func ProvisionTable(ctx context.Context, connStr, tableName string) error {
	svc, err := newTableService(connStr)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(tableName).CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return err
		}
	}
	return nil
}

func (s *TableStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	ent, err := s.table.GetEntity(ctx, collection, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err := decodeTableEntity(ent.Value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *TableStore) Put(ctx context.Context, collection, key string, value []byte) error {
	payload, err := encodeTableEntity(collection, key, value)
	if err != nil {
		return err
	}
	_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (s *TableStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.table.DeleteEntity(ctx, collection, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil
		}
	}
	return err
}

func (s *TableStore) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	filter := "PartitionKey eq '" + collection + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	values := [][]byte{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			v, err := decodeTableEntity(e)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	}
	return values, nil
}

func encodeTableEntity(collection, key string, value []byte) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(value)
	chunks := (len(encoded) + tableChunkSize - 1) / tableChunkSize
	if chunks > tableMaxChunks {
		return nil, fmt.Errorf("%w: %d bytes", errValueTooLarge, len(value))
	}
	ent := map[string]any{
		"PartitionKey": collection,
		"RowKey":       key,
		"Chunks":       chunks,
	}
	for i := 0; i < chunks; i++ {
		end := min((i+1)*tableChunkSize, len(encoded))
		ent["Data"+strconv.Itoa(i)] = encoded[i*tableChunkSize : end]
	}
	return sonic.ConfigStd.Marshal(ent)
}

func decodeTableEntity(data []byte) ([]byte, error) {
	var raw map[string]any
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	n, _ := raw["Chunks"].(float64)
	var encoded []byte
	for i := 0; i < int(n); i++ {
		part, ok := raw["Data"+strconv.Itoa(i)].(string)
		if !ok {
			return nil, fmt.Errorf("table entity missing chunk %d", i)
		}
		encoded = append(encoded, part...)
	}
	return base64.StdEncoding.DecodeString(string(encoded))
}
