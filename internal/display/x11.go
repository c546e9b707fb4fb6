package display

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/strandlight/beamcast/internal/frame"
)

// DisplayInfo describes one attached display.
type DisplayInfo struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	RefreshHz float64 `json:"refresh_hz"`
	Primary   bool    `json:"primary"`
}

// ListDisplays enumerates the connected displays with their geometry
// and refresh rate. IDs are stable per enumeration and start at 1;
// output configs use 0 to mean "the primary display".
func ListDisplays() ([]DisplayInfo, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connecting to display server: %w", err)
	}
	defer conn.Close()
	return listDisplays(conn)
}

func listDisplays(conn *xgb.Conn) ([]DisplayInfo, error) {
	screen := xproto.Setup(conn).DefaultScreen(conn)

	if err := randr.Init(conn); err != nil {
		// No RandR; the root screen is the only display we can offer.
		return []DisplayInfo{rootDisplay(screen)}, nil
	}
	res, err := randr.GetScreenResourcesCurrent(conn, screen.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("querying screen resources: %w", err)
	}
	primary, _ := randr.GetOutputPrimary(conn, screen.Root).Reply()

	modes := make(map[randr.Mode]randr.ModeInfo, len(res.Modes))
	for _, mi := range res.Modes {
		modes[randr.Mode(mi.Id)] = mi
	}

	var displays []DisplayInfo
	for _, output := range res.Outputs {
		oi, err := randr.GetOutputInfo(conn, output, res.ConfigTimestamp).Reply()
		if err != nil || oi.Connection != randr.ConnectionConnected || oi.Crtc == 0 {
			continue
		}
		ci, err := randr.GetCrtcInfo(conn, oi.Crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		info := DisplayInfo{
			ID:     len(displays) + 1,
			Name:   string(oi.Name),
			X:      int(ci.X),
			Y:      int(ci.Y),
			Width:  int(ci.Width),
			Height: int(ci.Height),
		}
		if mi, ok := modes[ci.Mode]; ok && mi.Htotal > 0 && mi.Vtotal > 0 {
			info.RefreshHz = float64(mi.DotClock) / (float64(mi.Htotal) * float64(mi.Vtotal))
		}
		if primary != nil && output == primary.Output {
			info.Primary = true
		}
		displays = append(displays, info)
	}
	if len(displays) == 0 {
		displays = append(displays, rootDisplay(screen))
	}
	return displays, nil
}

func rootDisplay(screen *xproto.ScreenInfo) DisplayInfo {
	return DisplayInfo{
		ID:        1,
		Name:      "default",
		Width:     int(screen.WidthInPixels),
		Height:    int(screen.HeightInPixels),
		RefreshHz: 60,
		Primary:   true,
	}
}

// pickDisplay resolves a configured display identifier. 0 means the
// primary display, falling back to the first one listed.
func pickDisplay(displays []DisplayInfo, id int) (DisplayInfo, error) {
	if len(displays) == 0 {
		return DisplayInfo{}, fmt.Errorf("no displays attached")
	}
	if id == 0 {
		for _, di := range displays {
			if di.Primary {
				return di, nil
			}
		}
		return displays[0], nil
	}
	for _, di := range displays {
		if di.ID == id {
			return di, nil
		}
	}
	return DisplayInfo{}, fmt.Errorf("display %d not found", id)
}

// surface is one X11 window with a pixmap back buffer. Everything
// except construction-time helpers must run on the platform goroutine
// that owns the connection.
type surface struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	win    xproto.Window
	gc     xproto.Gcontext
	pixmap xproto.Pixmap
	width  int
	height int
	depth  byte
	bpp    int // bytes per pixel on the wire
	pad    int // scanline pad in bytes
	buf    []byte
}

func openSurface(target DisplayInfo, width, height int, fullscreen bool, label string) (*surface, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connecting to X server: %w", err)
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)

	s := &surface{
		conn:   conn,
		screen: screen,
		width:  width,
		height: height,
		depth:  screen.RootDepth,
	}
	for _, f := range xproto.Setup(conn).PixmapFormats {
		if f.Depth == s.depth {
			s.bpp = int(f.BitsPerPixel) / 8
			s.pad = int(f.ScanlinePad) / 8
			break
		}
	}
	if s.bpp == 0 {
		conn.Close()
		return nil, fmt.Errorf("no pixmap format for depth %d", s.depth)
	}

	winID, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("allocating window ID: %w", err)
	}
	s.win = winID

	x := target.X + (target.Width-width)/2
	y := target.Y + (target.Height-height)/2
	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(
		conn,
		screen.RootDepth,
		s.win,
		screen.Root,
		int16(x), int16(y),
		uint16(width), uint16(height),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating window: %w", err)
	}

	// Title and class failures are cosmetic; fullscreen must be set
	// before the window maps for the WM to honor it.
	s.setTitle(label)
	s.setClass("beamcast", "Beamcast")
	if fullscreen {
		if err := s.setFullscreen(); err != nil {
			s.teardown()
			return nil, fmt.Errorf("requesting fullscreen: %w", err)
		}
	}

	if err := xproto.MapWindowChecked(conn, s.win).Check(); err != nil {
		s.teardown()
		return nil, fmt.Errorf("mapping window: %w", err)
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("allocating graphics context: %w", err)
	}
	s.gc = gc
	if err := xproto.CreateGCChecked(conn, s.gc, xproto.Drawable(s.win), 0, nil).Check(); err != nil {
		s.teardown()
		return nil, fmt.Errorf("creating graphics context: %w", err)
	}

	pm, err := xproto.NewPixmapId(conn)
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("allocating pixmap ID: %w", err)
	}
	s.pixmap = pm
	if err := xproto.CreatePixmapChecked(conn, s.depth, s.pixmap, xproto.Drawable(s.win), uint16(width), uint16(height)).Check(); err != nil {
		s.teardown()
		return nil, fmt.Errorf("creating back buffer: %w", err)
	}

	conn.Sync()
	return s, nil
}

// present uploads the texture into the back buffer and flips it onto
// the window. Uploads are chunked to stay under the server's maximum
// request size.
func (s *surface) present(tex *frame.Texture) error {
	if tex.Width() != s.width || tex.Height() != s.height {
		return fmt.Errorf("present size mismatch: frame %dx%d, surface %dx%d",
			tex.Width(), tex.Height(), s.width, s.height)
	}

	row := s.encode(tex)
	maxBytes := int(xproto.Setup(s.conn).MaximumRequestLength)*4 - 28
	rows := maxBytes / row
	if rows < 1 {
		rows = 1
	}
	for y := 0; y < s.height; y += rows {
		n := rows
		if y+n > s.height {
			n = s.height - y
		}
		chunk := s.buf[y*row : (y+n)*row]
		err := xproto.PutImageChecked(
			s.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(s.pixmap),
			s.gc,
			uint16(s.width), uint16(n),
			0, int16(y),
			0,
			s.depth,
			chunk,
		).Check()
		if err != nil {
			return fmt.Errorf("uploading rows %d-%d: %w", y, y+n-1, err)
		}
	}

	err := xproto.CopyAreaChecked(
		s.conn,
		xproto.Drawable(s.pixmap),
		xproto.Drawable(s.win),
		s.gc,
		0, 0, 0, 0,
		uint16(s.width), uint16(s.height),
	).Check()
	if err != nil {
		return fmt.Errorf("presenting back buffer: %w", err)
	}
	s.conn.Sync()
	return nil
}

// encode converts RGBA rows into the server's BGRx wire format with
// scanline padding, reusing one buffer across frames. It returns the
// padded row size in bytes.
func (s *surface) encode(tex *frame.Texture) int {
	row := ((s.width*s.bpp + s.pad - 1) / s.pad) * s.pad
	if len(s.buf) != row*s.height {
		s.buf = make([]byte, row*s.height)
	}
	pix := tex.Pix()
	stride := tex.Stride()
	for y := 0; y < s.height; y++ {
		src := y * stride
		dst := y * row
		for x := 0; x < s.width; x++ {
			si := src + x*4
			di := dst + x*s.bpp
			s.buf[di] = pix[si+2]
			s.buf[di+1] = pix[si+1]
			s.buf[di+2] = pix[si]
			if s.bpp >= 4 {
				if s.depth == 32 {
					s.buf[di+3] = pix[si+3]
				} else {
					s.buf[di+3] = 0
				}
			}
		}
	}
	return row
}

// resize moves and resizes the window and rebuilds the back buffer.
func (s *surface) resize(width, height, x, y int) error {
	err := xproto.ConfigureWindowChecked(
		s.conn,
		s.win,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(int32(x)), uint32(int32(y)), uint32(width), uint32(height)},
	).Check()
	if err != nil {
		return fmt.Errorf("resizing window: %w", err)
	}

	pm, err := xproto.NewPixmapId(s.conn)
	if err != nil {
		return fmt.Errorf("allocating pixmap ID: %w", err)
	}
	if err := xproto.CreatePixmapChecked(s.conn, s.depth, pm, xproto.Drawable(s.win), uint16(width), uint16(height)).Check(); err != nil {
		return fmt.Errorf("creating back buffer: %w", err)
	}
	xproto.FreePixmap(s.conn, s.pixmap)
	s.pixmap = pm
	s.width = width
	s.height = height
	s.buf = nil
	s.conn.Sync()
	return nil
}

// hide unmaps the window. Final destruction is deferred to the
// process-wide release queue.
func (s *surface) hide() {
	xproto.UnmapWindow(s.conn, s.win)
	s.conn.Sync()
}

// destroy releases every server-side resource and closes the
// connection. Must not run while a present may be in flight.
func (s *surface) destroy() {
	if s.pixmap != 0 {
		xproto.FreePixmap(s.conn, s.pixmap)
	}
	if s.gc != 0 {
		xproto.FreeGC(s.conn, s.gc)
	}
	s.teardown()
}

func (s *surface) teardown() {
	if s.win != 0 {
		xproto.DestroyWindow(s.conn, s.win)
	}
	s.conn.Sync()
	s.conn.Close()
}

func (s *surface) setTitle(title string) error {
	nameAtom, err := s.atom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := s.atom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		s.conn,
		xproto.PropModeReplace,
		s.win,
		nameAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (s *surface) setClass(instance, class string) error {
	classAtom, err := s.atom("WM_CLASS")
	if err != nil {
		return err
	}
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(
		s.conn,
		xproto.PropModeReplace,
		s.win,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

func (s *surface) setFullscreen() error {
	stateAtom, err := s.atom("_NET_WM_STATE")
	if err != nil {
		return err
	}
	fsAtom, err := s.atom("_NET_WM_STATE_FULLSCREEN")
	if err != nil {
		return err
	}
	buf := make([]byte, 4)
	xgb.Put32(buf, uint32(fsAtom))
	return xproto.ChangePropertyChecked(
		s.conn,
		xproto.PropModeReplace,
		s.win,
		stateAtom,
		xproto.AtomAtom,
		32,
		1,
		buf,
	).Check()
}

func (s *surface) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
