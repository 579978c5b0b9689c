package http_server

import (
	"net/http"

	"github.com/danthegoodman1/icescan/listing"
	"github.com/danthegoodman1/icescan/metastore"
	"github.com/danthegoodman1/icescan/utils"
)

type RegisterFilesReqBody struct {
	Files []metastore.FileEntry `json:"files" validate:"dive"`
	// DiscoverPrefix lists the table location under the prefix and
	// registers every data file found
	DiscoverPrefix *string `json:"discover_prefix"`
}

func (s *HTTPServer) CreateTable(c *CustomContext) error {
	var ts metastore.TableSchema
	if err := ValidateRequest(c, &ts); err != nil {
		return err
	}
	if err := ts.Check(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := s.MetaStore.CreateTableSchema(c.Request().Context(), ts); err != nil {
		return c.TableError(err, "error creating table")
	}
	created, err := s.MetaStore.GetTableSchema(c.Request().Context(), ts.Name)
	if err != nil {
		return c.TableError(err, "error getting created table")
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *HTTPServer) GetTable(c *CustomContext) error {
	ts, err := s.MetaStore.GetTableSchema(c.Request().Context(), c.Param("table"))
	if err != nil {
		return c.TableError(err, "error getting table")
	}
	return c.JSON(http.StatusOK, ts)
}

func (s *HTTPServer) ListFiles(c *CustomContext) error {
	ctx := c.Request().Context()
	table := c.Param("table")
	var (
		files []metastore.FileEntry
		err   error
	)
	if partitions := c.QueryParams()["partition"]; len(partitions) > 0 {
		files, err = s.MetaStore.ListFilesInPartitions(ctx, table, partitions)
	} else {
		files, err = s.MetaStore.ListFiles(ctx, table)
	}
	if err != nil {
		return c.TableError(err, "error listing files")
	}
	return c.JSON(http.StatusOK, utils.ArrayOrEmpty(files))
}

func (s *HTTPServer) RegisterFiles(c *CustomContext) error {
	ctx := c.Request().Context()
	table := c.Param("table")
	var reqBody RegisterFilesReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	if len(reqBody.Files) == 0 && reqBody.DiscoverPrefix == nil {
		return c.String(http.StatusBadRequest, "no files given")
	}

	registered := make([]metastore.FileEntry, 0, len(reqBody.Files))
	for _, f := range reqBody.Files {
		if err := s.MetaStore.RegisterFile(ctx, table, f); err != nil {
			return c.TableError(err, "error registering file")
		}
		registered = append(registered, f)
	}
	if reqBody.DiscoverPrefix != nil {
		found, err := listing.Discover(ctx, s.MetaStore, s.Registry, table, *reqBody.DiscoverPrefix)
		if err != nil {
			return c.TableError(err, "error discovering files")
		}
		registered = append(registered, found...)
	}
	return c.JSON(http.StatusCreated, registered)
}
