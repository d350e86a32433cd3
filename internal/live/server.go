package live

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"annfeed/internal/domain"
	"annfeed/internal/util"
)

// The stream carries each record as a google.protobuf.Struct holding the
// record's JSON object, so no generated stubs are needed.
const (
	ServiceName    = "annfeed.live.v1.Announcements"
	streamMethod   = "/" + ServiceName + "/Stream"
	snapshotHeader = "x-annfeed-snapshot"
)

type announcementsServer interface {
	Stream(req *emptypb.Empty, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*announcementsServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       streamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "annfeed/live/v1/announcements.proto",
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(announcementsServer).Stream(req, stream)
}

// Server implements the Stream gRPC endpoint on top of a Hub.
type Server struct {
	hub *Hub
	log *slog.Logger
}

// NewServer creates a gRPC server backed by the given Hub.
func NewServer(hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = util.Discard()
	}
	return &Server{hub: hub, log: log}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Stream sends the hub snapshot, then streams new records as they arrive.
// The stream ends when the client disconnects.
func (s *Server) Stream(_ *emptypb.Empty, stream grpc.ServerStream) error {
	// Subscribe before taking the snapshot so nothing falls in between;
	// a record present in both is deduplicated by the receiver.
	subID, ch := s.hub.Subscribe(4096)
	defer s.hub.Unsubscribe(subID)

	snapshot := s.hub.Snapshot()
	if err := stream.SendHeader(metadata.Pairs(snapshotHeader, strconv.Itoa(len(snapshot)))); err != nil {
		return err
	}
	for _, rec := range snapshot {
		if err := sendRecord(stream, rec); err != nil {
			return err
		}
	}

	s.log.Info("grpc client subscribed", "subID", subID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grpc client disconnected", "subID", subID)
			return nil
		case rec, ok := <-ch:
			if !ok {
				return nil
			}
			if err := sendRecord(stream, rec); err != nil {
				return err
			}
		}
	}
}

func sendRecord(stream grpc.ServerStream, rec domain.Announcement) error {
	msg, err := recordToStruct(rec)
	if err != nil {
		return err
	}
	return stream.SendMsg(msg)
}

func recordToStruct(rec domain.Announcement) (*structpb.Struct, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("convert record %s: %w", rec.ID, err)
	}
	return msg, nil
}
