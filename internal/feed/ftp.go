package feed

import (
	"context"
	"encoding/csv"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/model"
)

// priceRow is one line of a CSV price list.
type priceRow struct {
	Title    string   `csv:"title"`
	Price    *float64 `csv:"price"`
	Currency string   `csv:"currency"`
	Brand    string   `csv:"brand,omitempty"`
	URL      string   `csv:"url"`
	InStock  bool     `csv:"in_stock"`
}

// FTPWorker downloads a wholesale CSV price list over FTP and filters it
// locally. The whole list is fetched per query; these feeds are small and
// the servers have no search.
type FTPWorker struct {
	name    string
	host    string
	path    string
	timeout time.Duration
}

// NewFTPWorker builds an FTP worker from a registry entry.
func NewFTPWorker(sc StoreConfig) (*FTPWorker, error) {
	if sc.URL == "" {
		return nil, eris.Errorf("feed: ftp store %q has no url", sc.Name)
	}
	host, path, err := parseFTPURL(sc.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: ftp store %q", sc.Name)
	}
	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FTPWorker{name: sc.Name, host: host, path: path, timeout: timeout}, nil
}

func (w *FTPWorker) Store() string { return w.name }

// Fetch retrieves the price list and keeps the rows relevant to the query.
func (w *FTPWorker) Fetch(ctx context.Context, query string, limit int) ([]model.RawObservation, error) {
	rc, err := w.download(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	rows, err := parsePriceList(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: %s price list", w.name)
	}

	now := time.Now().UTC()
	var obs []model.RawObservation
	for _, row := range rows {
		if row.Title == "" || row.URL == "" {
			continue
		}
		if !matchesQuery(query, row.Title) {
			continue
		}
		obs = append(obs, model.RawObservation{
			StoreName:  w.name,
			Title:      row.Title,
			Price:      row.Price,
			Currency:   row.Currency,
			Brand:      row.Brand,
			ProductURL: row.URL,
			InStock:    row.InStock,
			ScrapedAt:  now,
		})
		if len(obs) >= limit {
			break
		}
	}

	zap.L().Debug("ftp feed fetch",
		zap.String("store", w.name),
		zap.Int("rows", len(rows)),
		zap.Int("kept", len(obs)),
	)
	return obs, nil
}

func (w *FTPWorker) download(ctx context.Context) (io.ReadCloser, error) {
	conn, err := ftp.Dial(w.host, ftp.DialWithTimeout(w.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "feed: %s ftp dial", w.name)
	}

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "feed: %s ftp login", w.name)
	}

	resp, err := conn.Retr(w.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "feed: %s ftp retrieve", w.name)
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// ftpConnReader ties the retrieved file and the control connection together
// so closing the reader also releases the connection.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "quit ftp connection")
	}
	return nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return "", "", eris.New("empty path in ftp url")
	}
	return host, u.Path, nil
}

// parsePriceList decodes a CSV price list. Unknown columns are ignored so
// suppliers can extend their exports without breaking us.
func parsePriceList(r io.Reader) ([]priceRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	dec.DisallowMissingColumns = false

	var rows []priceRow
	for {
		var row priceRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "decode row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}
