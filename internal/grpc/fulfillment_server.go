//go:build grpcserver

package grpcserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	fulfillmentv1 "orderFulfillmentTracking/api/fulfillment/v1"
	"orderFulfillmentTracking/internal/auth"
	"orderFulfillmentTracking/internal/config"
	"orderFulfillmentTracking/internal/geocode"
	"orderFulfillmentTracking/internal/lifecycle"
	"orderFulfillmentTracking/internal/location"
	"orderFulfillmentTracking/internal/route"
	"orderFulfillmentTracking/internal/tracker"
	"orderFulfillmentTracking/models"
	"orderFulfillmentTracking/repository"
)

// FulfillmentServer implements FulfillmentService RPCs.
type FulfillmentServer struct {
	fulfillmentv1.UnimplementedFulfillmentServiceServer

	Orders   repository.OrderStoreI
	Notes    repository.NotificationStoreI
	Machine  *lifecycle.Machine
	Tracker  *tracker.Coordinator
	Planner  *route.Planner
	Geocoder geocode.Geocoder
	Tracking config.TrackingConfig
	Log      *slog.Logger
}

func (s *FulfillmentServer) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// resolveOrder loads the order and enforces per-kind visibility: customers
// see their own orders, drivers the ones assigned to them, admins all.
func (s *FulfillmentServer) resolveOrder(ctx context.Context, p *auth.Principal, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	ord, err := s.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get order: %v", err)
	}
	if ord == nil {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	switch p.Kind {
	case "admin":
	case "customer":
		if ord.CustomerID != p.Name {
			return nil, status.Error(codes.PermissionDenied, "not your order")
		}
	case "driver":
		if ord.DriverID == nil || *ord.DriverID != p.Name {
			return nil, status.Error(codes.PermissionDenied, "order is not assigned to you")
		}
	default:
		return nil, status.Errorf(codes.PermissionDenied, "unknown principal kind %q", p.Kind)
	}
	return ord, nil
}

// CreateOrder places a new order for the authenticated customer.
func (s *FulfillmentServer) CreateOrder(ctx context.Context, req *fulfillmentv1.CreateOrderRequest) (*fulfillmentv1.CreateOrderResponse, error) {
	p, err := auth.RequireKind(ctx, "customer")
	if err != nil {
		return nil, err
	}
	if req == nil || req.Shipping == nil {
		return nil, status.Error(codes.InvalidArgument, "shipping is required")
	}

	items := make([]models.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.LineItem{
			ProductID:       it.ProductId,
			Title:           it.Title,
			UnitPrice:       it.UnitPrice,
			Quantity:        int(it.Quantity),
			SelectedVariant: it.SelectedVariant,
		})
	}
	shipping := models.Shipping{
		Address: req.Shipping.Address,
		Phone:   req.Shipping.Phone,
		Zone:    req.Shipping.Zone,
		Type:    models.ShippingType(req.Shipping.Type),
		Cost:    req.Shipping.Cost,
	}

	ord, err := models.NewOrder(p.Name, items, shipping, nil, time.Now().UTC())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid order: %v", err)
	}

	// Destination coordinates are resolved once here; a failed lookup only
	// costs the map pin, not the order.
	if s.Geocoder != nil {
		if lat, lng, gerr := s.Geocoder.Geocode(ctx, shipping.Address); gerr == nil {
			ord.DeliveryLat, ord.DeliveryLng = &lat, &lng
		} else {
			s.log().Warn("geocode failed", "order_id", ord.ID, "err", gerr)
		}
	}

	created, err := s.Orders.Create(ctx, ord)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create order: %v", err)
	}
	return &fulfillmentv1.CreateOrderResponse{Order: toProtoOrder(created)}, nil
}

// GetOrder returns one order visible to the caller.
func (s *FulfillmentServer) GetOrder(ctx context.Context, req *fulfillmentv1.GetOrderRequest) (*fulfillmentv1.GetOrderResponse, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	ord, err := s.resolveOrder(ctx, p, req.GetOrderId())
	if err != nil {
		return nil, err
	}
	return &fulfillmentv1.GetOrderResponse{Order: toProtoOrder(ord)}, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *FulfillmentServer) ListOrders(ctx context.Context, req *fulfillmentv1.ListOrdersRequest) (*fulfillmentv1.ListOrdersResponse, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}

	field, value := "", ""
	switch p.Kind {
	case "customer":
		field, value = "customer_id", p.Name
	case "driver":
		field, value = "driver_id", p.Name
	case "admin":
		if req.GetCustomerId() == "" {
			return nil, status.Error(codes.InvalidArgument, "customer_id is required for admin listing")
		}
		field, value = "customer_id", req.GetCustomerId()
	default:
		return nil, status.Errorf(codes.PermissionDenied, "unknown principal kind %q", p.Kind)
	}

	orders, err := s.Orders.QueryByField(ctx, field, value)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list orders: %v", err)
	}
	resp := &fulfillmentv1.ListOrdersResponse{}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toProtoOrder(o))
	}
	return resp, nil
}

// RequestTransition applies one status change through the state machine.
func (s *FulfillmentServer) RequestTransition(ctx context.Context, req *fulfillmentv1.RequestTransitionRequest) (*fulfillmentv1.RequestTransitionResponse, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolveOrder(ctx, p, req.GetOrderId()); err != nil {
		return nil, err
	}
	actor, err := auth.ActorOf(p)
	if err != nil {
		return nil, err
	}

	target := models.OrderStatus(req.GetToStatus())
	if !target.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", req.GetToStatus())
	}
	meta := lifecycle.Metadata{
		RecipientName:   req.GetRecipientName(),
		DeliveryRemarks: req.GetDeliveryRemarks(),
	}
	if target == models.OrderStatusShipped {
		switch {
		case p.Kind == "driver":
			meta.DriverID = p.Name
		case p.Kind == "admin" && req.GetDriverId() != "":
			meta.DriverID = req.GetDriverId()
		}
	}

	ord, err := s.Machine.RequestTransition(ctx, req.GetOrderId(), target, actor, meta)
	if err != nil {
		return nil, transitionStatus(err)
	}
	return &fulfillmentv1.RequestTransitionResponse{Order: toProtoOrder(ord)}, nil
}

func transitionStatus(err error) error {
	var illegal *lifecycle.IllegalTransitionError
	var invalid *lifecycle.ValidationError
	switch {
	case errors.As(err, &illegal):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.As(err, &invalid):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, lifecycle.ErrConcurrentConflict):
		return status.Errorf(codes.Aborted, "%v", err)
	case errors.Is(err, lifecycle.ErrOrderNotFound), errors.Is(err, repository.ErrNotFound):
		return status.Error(codes.NotFound, "order not found")
	}
	return status.Errorf(codes.Internal, "transition: %v", err)
}

// WatchOrder streams order snapshots until the watcher disconnects or the
// order reaches a terminal status.
func (s *FulfillmentServer) WatchOrder(req *fulfillmentv1.WatchOrderRequest, stream fulfillmentv1.FulfillmentService_WatchOrderServer) error {
	ctx := stream.Context()
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if _, err := s.resolveOrder(ctx, p, req.GetOrderId()); err != nil {
		return err
	}

	sub, err := s.Tracker.Watch(ctx, req.GetOrderId())
	if err != nil {
		return status.Errorf(codes.Internal, "watch: %v", err)
	}
	defer sub.Close()

	var last models.OrderStatus
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.Snapshots():
			if !ok {
				return nil
			}
			upd := &fulfillmentv1.OrderUpdate{Order: toProtoOrder(snap.Order)}
			if snap.Order.Status != last {
				upd.StatusChanged = true
				upd.PreviousStatus = string(last)
				last = snap.Order.Status
			}
			if err := stream.Send(upd); err != nil {
				return err
			}
			if snap.Order.Status.Terminal() {
				return nil
			}
		}
	}
}

// grpcSource adapts a client location stream to the throttled writer.
type grpcSource struct {
	ch chan models.LocationSample
}

func (g *grpcSource) Subscribe(context.Context, string) (<-chan models.LocationSample, error) {
	return g.ch, nil
}

// countingWriter wraps the order store to bind the order and count writes.
type countingWriter struct {
	orders  repository.OrderStoreI
	orderID string
	written atomic.Int64
}

func (w *countingWriter) PatchDriverLocation(ctx context.Context, _ string, lat, lng float64) error {
	err := w.orders.PatchDriverLocation(ctx, w.orderID, lat, lng)
	if err == nil {
		w.written.Add(1)
	}
	return err
}

// PushLocations ingests the driver's GPS fixes for one order. The first fix
// selects the order; fixes for other orders on the same stream are rejected.
func (s *FulfillmentServer) PushLocations(stream fulfillmentv1.FulfillmentService_PushLocationsServer) error {
	ctx := stream.Context()
	p, err := auth.RequireDriver(ctx)
	if err != nil {
		return err
	}

	first, err := stream.Recv()
	if err == io.EOF {
		return stream.SendAndClose(&fulfillmentv1.PushLocationsSummary{})
	}
	if err != nil {
		return err
	}
	if _, err := s.resolveOrder(ctx, p, first.GetOrderId()); err != nil {
		return err
	}
	orderID := first.GetOrderId()

	src := &grpcSource{ch: make(chan models.LocationSample, 16)}
	writer := &countingWriter{orders: s.Orders, orderID: orderID}
	ls := location.NewStream(src, writer, location.Config{
		MaxAccuracyM:  s.Tracking.MaxAccuracyM,
		WriteInterval: s.Tracking.WriteInterval,
	}, s.log())

	var received int64
	feed := func(fix *fulfillmentv1.LocationFix) {
		received++
		sample := models.LocationSample{
			Lat:       fix.GetLocation().GetLat(),
			Lng:       fix.GetLocation().GetLng(),
			AccuracyM: fix.GetAccuracyMeters(),
			Timestamp: fix.GetRecordedAt().AsTime(),
		}
		select {
		case src.ch <- sample:
		case <-ctx.Done():
		}
	}

	// Start blocks until the first accepted sample, so it runs alongside
	// the receive loop. A rejected first fix must not stall the stream.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := ls.Start(runCtx, p.Name, orderID); err != nil && !errors.Is(err, context.Canceled) {
			s.log().Warn("location stream", "order_id", orderID, "err", err)
		}
	}()
	defer ls.Stop()
	feed(first)

	for {
		fix, err := stream.Recv()
		if err == io.EOF {
			ls.Stop()
			return stream.SendAndClose(&fulfillmentv1.PushLocationsSummary{
				Received: received,
				Written:  writer.written.Load(),
			})
		}
		if err != nil {
			return err
		}
		if fix.GetOrderId() != orderID {
			return status.Error(codes.InvalidArgument, "one stream serves one order")
		}
		feed(fix)
	}
}

// PlanRoute returns the current driving route from the driver to the
// delivery point.
func (s *FulfillmentServer) PlanRoute(ctx context.Context, req *fulfillmentv1.PlanRouteRequest) (*fulfillmentv1.PlanRouteResponse, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	ord, err := s.resolveOrder(ctx, p, req.GetOrderId())
	if err != nil {
		return nil, err
	}
	if ord.DriverLat == nil || ord.DriverLng == nil {
		return nil, status.Error(codes.FailedPrecondition, "driver position is not known yet")
	}
	if ord.DeliveryLat == nil || ord.DeliveryLng == nil {
		return nil, status.Error(codes.FailedPrecondition, "delivery point is not geocoded")
	}

	origin := models.Coordinate{Lat: *ord.DriverLat, Lng: *ord.DriverLng}
	dest := models.Coordinate{Lat: *ord.DeliveryLat, Lng: *ord.DeliveryLng}
	rt, err := s.Planner.Plan(ctx, ord.ID, origin, dest)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "route: %v", err)
	}
	resp := &fulfillmentv1.PlanRouteResponse{
		DistanceMeters:  rt.DistanceMeters,
		DurationSeconds: rt.DurationSeconds,
		RemainingMeters: s.Planner.RemainingDistance(origin, dest),
	}
	for _, pt := range rt.Polyline {
		resp.Polyline = append(resp.Polyline, &fulfillmentv1.Coordinates{Lat: pt.Lat, Lng: pt.Lng})
	}
	return resp, nil
}

// ListNotifications returns the caller's stored notifications, newest first.
func (s *FulfillmentServer) ListNotifications(ctx context.Context, _ *fulfillmentv1.ListNotificationsRequest) (*fulfillmentv1.ListNotificationsResponse, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	notes, err := s.Notes.ListByRecipient(ctx, p.Name)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list notifications: %v", err)
	}
	resp := &fulfillmentv1.ListNotificationsResponse{}
	for _, n := range notes {
		resp.Notifications = append(resp.Notifications, &fulfillmentv1.Notification{
			Id:        n.ID,
			OrderId:   n.OrderID,
			Title:     n.Title,
			Body:      n.Body,
			Read:      n.Read,
			CreatedAt: timestamppb.New(n.CreatedAt),
		})
	}
	return resp, nil
}

// MarkNotificationRead flags one notification as read.
func (s *FulfillmentServer) MarkNotificationRead(ctx context.Context, req *fulfillmentv1.MarkNotificationReadRequest) (*fulfillmentv1.MarkNotificationReadResponse, error) {
	if _, err := auth.RequirePrincipal(ctx); err != nil {
		return nil, err
	}
	if req.GetNotificationId() == "" {
		return nil, status.Error(codes.InvalidArgument, "notification_id is required")
	}
	if err := s.Notes.MarkRead(ctx, req.GetNotificationId()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "notification not found")
		}
		return nil, status.Errorf(codes.Internal, "mark read: %v", err)
	}
	return &fulfillmentv1.MarkNotificationReadResponse{}, nil
}

func toProtoOrder(o *models.Order) *fulfillmentv1.Order {
	if o == nil {
		return nil
	}
	po := &fulfillmentv1.Order{
		Id:         o.ID,
		Seq:        o.Seq,
		CustomerId: o.CustomerID,
		Status:     string(o.Status),
		Shipping: &fulfillmentv1.Shipping{
			Address: o.ShippingAddress,
			Phone:   o.ShippingPhone,
			Zone:    o.ShippingZone,
			Type:    string(o.ShippingType),
			Cost:    o.ShippingCost,
		},
		Subtotal:        o.Subtotal,
		DiscountTotal:   o.DiscountTotal,
		Total:           o.Total,
		RecipientName:   o.RecipientName,
		DeliveryRemarks: o.DeliveryRemarks,
		CreatedAt:       timestamppb.New(o.CreatedAt),
		UpdatedAt:       timestamppb.New(o.UpdatedAt),
	}
	if o.DriverID != nil {
		po.DriverId = *o.DriverID
	}
	if o.DeliveryLat != nil && o.DeliveryLng != nil {
		po.DeliveryLocation = &fulfillmentv1.Coordinates{Lat: *o.DeliveryLat, Lng: *o.DeliveryLng}
	}
	if o.DriverLat != nil && o.DriverLng != nil {
		po.DriverLocation = &fulfillmentv1.Coordinates{Lat: *o.DriverLat, Lng: *o.DriverLng}
	}
	for _, it := range o.Items {
		po.Items = append(po.Items, &fulfillmentv1.LineItem{
			ProductId:       it.ProductID,
			Title:           it.Title,
			UnitPrice:       it.UnitPrice,
			Quantity:        int32(it.Quantity),
			SelectedVariant: it.SelectedVariant,
		})
	}
	return po
}
